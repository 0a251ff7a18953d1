package strategy

import (
	"context"
	"fmt"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/indicator"
)

// MACD signals on MACD/signal line crossings
type MACD struct {
	base
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD reads the MACD periods from opts
func NewMACD(opts Options) *MACD {
	fast := opts.Int(12, "fast_period", "macd_fast", "macd_fast_period")
	slow := opts.Int(26, "slow_period", "macd_slow", "macd_slow_period")
	signal := opts.Int(9, "signal_period", "macd_signal", "macd_signal_period")
	if fast > slow {
		fast, slow = slow, fast
	}

	return &MACD{
		base:         newBase(IDMACD, core.GranularityM1, slow+signal, opts),
		fastPeriod:   max(fast, 1),
		slowPeriod:   max(slow, 2),
		signalPeriod: max(signal, 1),
	}
}

func (s *MACD) Evaluate(_ context.Context, window core.Window) *core.Signal {
	n := len(window)

	// shrink periods so that two histogram values exist: n >= slow + signal
	signal := min(s.signalPeriod, max(1, n/4))
	slow := min(s.slowPeriod, n-signal)
	fast := min(s.fastPeriod, slow-1)
	if fast < 1 || slow < 2 {
		return nil
	}

	line, _, hist := indicator.MACD(window.Closes(), fast, slow, signal)
	if len(hist) < 2 {
		return nil
	}

	h := core.Series[float64](hist)
	macd := line[len(line)-1]
	meta := []core.SignalOption{
		core.WithMetadata("macd", macd),
		core.WithMetadata("histogram", h.Last(0)),
	}

	switch {
	case h.Last(0) > 0 && h.Last(1) <= 0:
		confidence := 0.7
		if macd > 0 {
			confidence = 0.8
		}
		return s.emit(window, core.SideBuy, confidence, fmt.Sprintf("MACD crossed above signal (%.5f)", macd), meta...)
	case h.Last(0) < 0 && h.Last(1) >= 0:
		confidence := 0.7
		if macd < 0 {
			confidence = 0.8
		}
		return s.emit(window, core.SideSell, confidence, fmt.Sprintf("MACD crossed below signal (%.5f)", macd), meta...)
	}

	return nil
}
