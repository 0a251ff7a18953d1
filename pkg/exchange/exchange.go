package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/xhit/go-str2duration/v2"
)

// Errors returned by the paper exchange
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrUnknownPosition  = errors.New("unknown position")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
)

// MarketData is the price source a PaperBroker trades against
type MarketData interface {
	Quote(ctx context.Context, symbol string) (core.Quote, error)
	SymbolInfo(ctx context.Context, symbol string) (core.SymbolInfo, error)
	Window(ctx context.Context, req core.WindowRequest) (core.Window, error)
}

// OrderError is returned for operations on positions the broker rejects
type OrderError struct {
	Err    error
	Symbol string
	Ticket int64
}

func (o *OrderError) Error() string {
	return fmt.Sprintf("order error: %v, symbol: %s, ticket: %d", o.Err, o.Symbol, o.Ticket)
}

func (o *OrderError) Unwrap() error { return o.Err }

var granularities = []core.Granularity{
	core.GranularityM1, core.GranularityM5, core.GranularityM15, core.GranularityH1,
}

// ParseTimeframe converts a timeframe such as "1m", "15m" or "1h" to its
// bar granularity.
func ParseTimeframe(timeframe string) (core.Granularity, error) {
	for _, g := range granularities {
		if string(g) == timeframe {
			return g, nil
		}
	}

	d, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidTimeframe, timeframe)
	}
	return GranularityOf(d)
}

// GranularityOf maps a bar duration to its granularity
func GranularityOf(d time.Duration) (core.Granularity, error) {
	for _, g := range granularities {
		if g.Duration() == d {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidTimeframe, d)
}

// Timeframe returns the exchange notation of a bar granularity ("1m", "1h")
func Timeframe(g core.Granularity) string {
	switch g {
	case core.GranularityM1:
		return "1m"
	case core.GranularityM5:
		return "5m"
	case core.GranularityM15:
		return "15m"
	case core.GranularityH1:
		return "1h"
	default:
		return ""
	}
}
