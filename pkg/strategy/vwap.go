package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/indicator"
	"gonum.org/v1/gonum/stat"
)

// VWAP trades reversion towards the volume weighted average price
type VWAP struct {
	base
	period    int
	threshold float64
}

// NewVWAP reads period and deviation threshold from opts
func NewVWAP(opts Options) *VWAP {
	period := opts.Int(20, "period", "vwap_period")
	return &VWAP{
		base:      newBase(IDVWAP, core.GranularityM1, period, opts),
		period:    max(period, 2),
		threshold: opts.Float(0.002, "deviation_threshold", "vwap_threshold"),
	}
}

func (s *VWAP) Evaluate(_ context.Context, window core.Window) *core.Signal {
	if len(window) < 3 {
		return nil
	}

	recent := window.Tail(s.period)
	closes := recent.Closes()
	vwap, ok := indicator.VWAP(closes, recent.Volumes(), len(recent))
	if !ok || vwap <= 0 {
		return nil
	}

	price := window.Last().Price()
	deviation := (price - vwap) / vwap
	band := 0.5 * stat.PopStdDev(closes, nil)
	trend := closes.Last(0) - closes.Last(2)

	meta := []core.SignalOption{
		core.WithMetadata("vwap", vwap),
		core.WithMetadata("deviation", deviation),
	}

	switch {
	case price < vwap-band && deviation < -s.threshold:
		return s.emit(window, core.SideBuy, scaled(math.Abs(deviation)-s.threshold, s.threshold, 0.6, 0.9),
			fmt.Sprintf("price %.5f below VWAP %.5f", price, vwap), meta...)
	case price > vwap+band && deviation > s.threshold:
		return s.emit(window, core.SideSell, scaled(deviation-s.threshold, s.threshold, 0.6, 0.9),
			fmt.Sprintf("price %.5f above VWAP %.5f", price, vwap), meta...)
	case price < vwap && trend > 0:
		return s.emit(window, core.SideBuy, 0.65, fmt.Sprintf("rising back towards VWAP %.5f", vwap), meta...)
	case price > vwap && trend < 0:
		return s.emit(window, core.SideSell, 0.65, fmt.Sprintf("falling back towards VWAP %.5f", vwap), meta...)
	}

	return nil
}
