package order

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/metric"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/storage"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// profits closer to zero than this count as break-even
const breakEvenEpsilon = 1e-9

// TradeStatus is the lifecycle state of a trade opened by the engine
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// ActiveTrade is a position opened by the engine and not yet seen closed
type ActiveTrade struct {
	ID         string
	Ticket     int64
	Symbol     string
	Side       core.Side
	Signal     core.Signal
	EntryTime  time.Time
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Status     TradeStatus
}

// Ledger tracks the engine's open trades and aggregates its performance
// from broker history.
type Ledger struct {
	mu    sync.RWMutex
	store *storage.TradeStore
	log   logger.Logger

	tag           int64
	commentPrefix string
	sessionStart  time.Time

	active   map[string]*ActiveTrade
	byTicket map[int64]string

	// totals folded in from previous sessions
	pastTrades  int
	pastWinning int
	pastLosing  int
	pastProfit  float64

	peakBalance float64
	maxDrawdown float64
	snapshot    PerformanceSnapshot
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithTradeStore persists completed trades
func WithTradeStore(store *storage.TradeStore) LedgerOption {
	return func(l *Ledger) {
		l.store = store
	}
}

// WithLedgerLogger sets the ledger logger
func WithLedgerLogger(log logger.Logger) LedgerOption {
	return func(l *Ledger) {
		l.log = log
	}
}

// NewLedger creates an empty ledger; call BeginSession before use
func NewLedger(options ...LedgerOption) *Ledger {
	l := &Ledger{
		log:      logger.Nop(),
		active:   make(map[string]*ActiveTrade),
		byTicket: make(map[int64]string),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// BeginSession starts accounting for a new run identified by tag and
// comment prefix. Totals of the previous session are kept as lifetime totals.
func (l *Ledger) BeginSession(tag int64, commentPrefix string, start time.Time, balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pastTrades += l.snapshot.TotalTrades
	l.pastWinning += l.snapshot.WinningTrades
	l.pastLosing += l.snapshot.LosingTrades
	l.pastProfit += l.snapshot.RealizedProfit

	l.tag = tag
	l.commentPrefix = commentPrefix
	l.sessionStart = start
	l.active = make(map[string]*ActiveTrade)
	l.byTicket = make(map[int64]string)
	l.peakBalance = balance
	l.maxDrawdown = 0

	l.snapshot = PerformanceSnapshot{
		LifetimeTrades:         l.pastTrades,
		LifetimeWinning:        l.pastWinning,
		LifetimeLosing:         l.pastLosing,
		LifetimeRealizedProfit: l.pastProfit,
		Balance:                balance,
		PeakBalance:            balance,
		UpdatedAt:              start,
	}
}

// SessionStart returns when the current session began
func (l *Ledger) SessionStart() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionStart
}

// Owns reports whether an order tag or comment belongs to this session
func (l *Ledger) Owns(magic int64, comment string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.owns(magic, comment)
}

func (l *Ledger) owns(magic int64, comment string) bool {
	if l.tag != 0 && magic == l.tag {
		return true
	}
	return l.commentPrefix != "" && strings.HasPrefix(comment, l.commentPrefix)
}

// RecordOpened registers a trade after a successful submission
func (l *Ledger) RecordOpened(trade ActiveTrade) ActiveTrade {
	l.mu.Lock()
	defer l.mu.Unlock()

	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	trade.Status = TradeOpen

	l.active[trade.ID] = &trade
	if trade.Ticket != 0 {
		l.byTicket[trade.Ticket] = trade.ID
	}
	l.snapshot.ActiveTrades = len(l.active)

	l.log.WithFields(map[string]any{
		"trade_id": trade.ID,
		"ticket":   trade.Ticket,
	}).Infof("trade opened: %s %.2f %s @ %.5f", trade.Side, trade.Volume, trade.Symbol, trade.EntryPrice)

	return trade
}

// ActiveTrades returns copies of the open trades ordered by entry time
func (l *Ledger) ActiveTrades() []ActiveTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trades := lo.Map(lo.Values(l.active), func(t *ActiveTrade, _ int) ActiveTrade { return *t })
	slices.SortFunc(trades, func(a, b ActiveTrade) int { return a.EntryTime.Compare(b.EntryTime) })
	return trades
}

// Snapshot returns the last computed performance
func (l *Ledger) Snapshot() PerformanceSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Refresh rebuilds the performance snapshot from the deals since the session
// start and the currently open positions. Deals and positions not owned by
// this session are ignored. A position counts as a completed trade once its
// history holds an exit deal; only then does its trade leave the active set.
func (l *Ledger) Refresh(deals []core.Deal, positions []core.Position, account core.Account, now time.Time) PerformanceSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	open := make(map[int64]bool)
	var unrealized float64
	for _, position := range positions {
		if !l.owns(position.Magic, position.Comment) {
			continue
		}
		open[position.Ticket] = true
		unrealized += position.Profit
	}

	owned := lo.Filter(deals, func(d core.Deal, _ int) bool { return l.owns(d.Magic, d.Comment) })
	groups := lo.GroupBy(owned, func(d core.Deal) int64 { return d.PositionID })

	completed := make([]core.CompletedTrade, 0, len(groups))
	for positionID, group := range groups {
		// a position without an exit deal has not closed, whatever the
		// open positions say
		if open[positionID] || !lo.ContainsBy(group, isExit) {
			continue
		}
		completed = append(completed, reconstruct(positionID, group))
	}
	slices.SortFunc(completed, func(a, b core.CompletedTrade) int {
		return cmp.Or(a.CloseTime.Compare(b.CloseTime), cmp.Compare(a.PositionID, b.PositionID))
	})

	snapshot := PerformanceSnapshot{
		UnrealizedProfit: unrealized,
		Balance:          account.Balance,
		Equity:           account.Equity,
		Profits:          make([]float64, 0, len(completed)),
		UpdatedAt:        now,
	}

	for _, trade := range completed {
		snapshot.TotalTrades++
		snapshot.RealizedProfit += trade.Profit
		snapshot.Profits = append(snapshot.Profits, trade.Profit)

		switch {
		case trade.Profit > breakEvenEpsilon:
			snapshot.WinningTrades++
		case trade.Profit < -breakEvenEpsilon:
			snapshot.LosingTrades++
		default:
			snapshot.BreakEvenTrades++
		}

		l.close(trade)
	}

	if snapshot.TotalTrades > 0 {
		snapshot.WinRate = float64(snapshot.WinningTrades) / float64(snapshot.TotalTrades)
	}
	snapshot.Payoff = metric.Payoff(snapshot.Profits)
	snapshot.ProfitFactor = metric.ProfitFactor(snapshot.Profits)
	snapshot.SQN = metric.SQN(snapshot.Profits)

	if account.Balance > 0 {
		l.peakBalance = math.Max(l.peakBalance, account.Balance)
		snapshot.Drawdown = l.peakBalance - account.Balance
		l.maxDrawdown = math.Max(l.maxDrawdown, snapshot.Drawdown)
	}
	snapshot.PeakBalance = l.peakBalance
	snapshot.MaxDrawdown = l.maxDrawdown

	snapshot.LifetimeTrades = l.pastTrades + snapshot.TotalTrades
	snapshot.LifetimeWinning = l.pastWinning + snapshot.WinningTrades
	snapshot.LifetimeLosing = l.pastLosing + snapshot.LosingTrades
	snapshot.LifetimeRealizedProfit = l.pastProfit + snapshot.RealizedProfit
	snapshot.ActiveTrades = len(l.active)

	l.snapshot = snapshot
	return snapshot
}

// close moves a trade out of the active set and persists it. The caller
// holds the lock.
func (l *Ledger) close(trade core.CompletedTrade) {
	if id, ok := l.byTicket[trade.PositionID]; ok {
		active := l.active[id]
		delete(l.active, id)
		delete(l.byTicket, trade.PositionID)
		if active != nil {
			l.log.WithField("trade_id", id).Infof("trade closed: position %d profit %.2f", trade.PositionID, trade.Profit)
		}
	}

	if l.store == nil {
		return
	}
	if _, err := l.store.Save(trade); err != nil {
		l.log.WithError(err).Warnf("failed to store trade %d", trade.PositionID)
	}
}

func isExit(d core.Deal) bool { return d.Entry == core.DealEntryOut }

// reconstruct folds the deals of one position into a completed trade
func reconstruct(positionID int64, deals []core.Deal) core.CompletedTrade {
	slices.SortStableFunc(deals, func(a, b core.Deal) int { return a.Time.Compare(b.Time) })

	trade := core.CompletedTrade{
		PositionID: positionID,
		Symbol:     deals[0].Symbol,
		Side:       deals[0].Side,
		OpenTime:   deals[0].Time,
		CloseTime:  deals[len(deals)-1].Time,
		Deals:      len(deals),
	}

	var entered bool
	for _, deal := range deals {
		trade.Profit += deal.NetProfit()

		switch deal.Entry {
		case core.DealEntryIn:
			if !entered {
				trade.Side, trade.EntryPrice, trade.OpenTime, entered = deal.Side, deal.Price, deal.Time, true
			}
			trade.Volume += deal.Volume
		case core.DealEntryOut:
			trade.ExitPrice = deal.Price
		}
	}

	return trade
}
