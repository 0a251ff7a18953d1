package storage

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/tidwall/buntdb"
)

const (
	tradeKeyPrefix = "trade:"
	closeTimeIndex = "close_time_index"
)

// TradeFilter selects completed trades
type TradeFilter func(core.CompletedTrade) bool

// WithSymbol keeps trades on the given symbol
func WithSymbol(symbol string) TradeFilter {
	return func(t core.CompletedTrade) bool {
		return t.Symbol == symbol
	}
}

// WithSide keeps trades on the given side
func WithSide(side core.Side) TradeFilter {
	return func(t core.CompletedTrade) bool {
		return t.Side == side
	}
}

// TradeStore keeps completed trades in BuntDB, keyed by position id and
// ordered by close time.
type TradeStore struct {
	db  *buntdb.DB
	log logger.Logger
}

// FromMemory creates an in-memory store
func FromMemory() (*TradeStore, error) {
	return NewTradeStore(":memory:")
}

// FromFile creates a file-backed store
func FromFile(file string) (*TradeStore, error) {
	return NewTradeStore(file)
}

// NewTradeStore opens a BuntDB database at path
func NewTradeStore(path string) (*TradeStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex(closeTimeIndex, tradeKeyPrefix+"*", buntdb.IndexJSON("close_time"))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &TradeStore{db: db, log: logger.Nop()}, nil
}

// SetLogger sets the logger used to report undecodable records
func (s *TradeStore) SetLogger(log logger.Logger) {
	s.log = log
}

func tradeKey(positionID int64) string {
	return tradeKeyPrefix + strconv.FormatInt(positionID, 10)
}

// Save stores a trade, replacing any previous record for the same position.
// It reports whether the trade was new.
func (s *TradeStore) Save(trade core.CompletedTrade) (bool, error) {
	content, err := json.Marshal(trade)
	if err != nil {
		return false, fmt.Errorf("failed to marshal trade: %w", err)
	}

	var replaced bool
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, replaced, err = tx.Set(tradeKey(trade.PositionID), string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return !replaced, nil
}

// Has reports whether a trade for the position is stored
func (s *TradeStore) Has(positionID int64) bool {
	err := s.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(tradeKey(positionID))
		return err
	})
	return err == nil
}

// Trades returns stored trades ordered by close time, applying all filters
func (s *TradeStore) Trades(filters ...TradeFilter) ([]core.CompletedTrade, error) {
	trades := make([]core.CompletedTrade, 0)

	err := s.db.View(func(tx *buntdb.Tx) error {
		err := tx.Ascend(closeTimeIndex, func(key, value string) bool {
			var trade core.CompletedTrade
			if err := json.Unmarshal([]byte(value), &trade); err != nil {
				s.log.WithError(err).Warnf("skipping undecodable trade %s", key)
				return true
			}

			for _, filter := range filters {
				if !filter(trade) {
					return true
				}
			}

			trades = append(trades, trade)
			return true
		})
		if err != nil {
			return fmt.Errorf("failed to iterate over trades: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return trades, nil
}

// Len returns the number of stored trades
func (s *TradeStore) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		n, err = tx.Len()
		return err
	})
	return n, err
}

// Close closes the database
func (s *TradeStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
