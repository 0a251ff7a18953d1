package strategy

import (
	"context"
	"fmt"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/indicator"
)

// Bollinger fades touches of the outer bands
type Bollinger struct {
	base
	period    int
	deviation float64
}

// NewBollinger reads period and deviation from opts
func NewBollinger(opts Options) *Bollinger {
	period := opts.Int(20, "period", "bb_period")
	return &Bollinger{
		base:      newBase(IDBollinger, core.GranularityM1, period, opts),
		period:    max(period, 2),
		deviation: opts.Float(2.0, "deviation", "std_dev", "bb_std_dev"),
	}
}

func (s *Bollinger) Evaluate(_ context.Context, window core.Window) *core.Signal {
	period := indicator.AdaptPeriod(s.period, len(window), 2)
	if period == 0 {
		return nil
	}

	upper, middle, lower := indicator.BB(window.Closes(), period, s.deviation)
	if len(upper) == 0 {
		return nil
	}

	up, mid, low := upper[len(upper)-1], middle[len(middle)-1], lower[len(lower)-1]
	width := up - low
	if width <= 0 {
		return nil
	}

	price := window.Last().Price()
	meta := []core.SignalOption{
		core.WithMetadata("bb_upper", up),
		core.WithMetadata("bb_middle", mid),
		core.WithMetadata("bb_lower", low),
	}

	switch {
	case price <= low:
		confidence := 0.6 + 0.3*min(1, (low-price)/width)
		return s.emit(window, core.SideBuy, confidence, fmt.Sprintf("price %.5f at lower band %.5f", price, low), meta...)
	case price >= up:
		confidence := 0.6 + 0.3*min(1, (price-up)/width)
		return s.emit(window, core.SideSell, confidence, fmt.Sprintf("price %.5f at upper band %.5f", price, up), meta...)
	}

	return nil
}
