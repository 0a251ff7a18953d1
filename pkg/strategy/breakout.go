package strategy

import (
	"context"
	"fmt"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
)

// Breakout trades a close beyond the recent range
type Breakout struct {
	base
	lookback  int
	threshold float64
}

// NewBreakout reads lookback and threshold from opts
func NewBreakout(opts Options) *Breakout {
	lookback := opts.Int(4, "lookback", "lookback_period", "breakout_lookback")
	return &Breakout{
		base:      newBase(IDBreakout, core.GranularityTick, lookback+1, opts),
		lookback:  max(lookback, 1),
		threshold: opts.Float(0.0005, "threshold", "breakout_threshold"),
	}
}

func (s *Breakout) Evaluate(_ context.Context, window core.Window) *core.Signal {
	if len(window) < 2 {
		return nil
	}

	lookback := min(s.lookback, len(window)-1)
	previous := window.Head(1).Tail(lookback)
	resistance := previous.Highs().Highest()
	support := previous.Lows().Lowest()
	price := window.Last().Price()

	if resistance <= 0 || support <= 0 {
		return nil
	}

	meta := []core.SignalOption{
		core.WithMetadata("resistance", resistance),
		core.WithMetadata("support", support),
	}

	if excess := price/resistance - 1; excess > s.threshold {
		return s.emit(window, core.SideBuy, scaled(excess-s.threshold, s.threshold, 0.6, 0.9),
			fmt.Sprintf("breakout above %.5f", resistance), meta...)
	}
	if excess := 1 - price/support; excess > s.threshold {
		return s.emit(window, core.SideSell, scaled(excess-s.threshold, s.threshold, 0.6, 0.9),
			fmt.Sprintf("breakdown below %.5f", support), meta...)
	}

	return nil
}
