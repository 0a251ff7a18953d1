package strategy

import (
	"context"
	"fmt"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/indicator"
)

// Stochastic signals %K/%D crossings inside the extreme zones
type Stochastic struct {
	base
	kPeriod    int
	dPeriod    int
	slowing    int
	oversold   float64
	overbought float64
}

// NewStochastic reads the %K and %D settings from opts
func NewStochastic(opts Options) *Stochastic {
	k := opts.Int(14, "k_period", "stoch_k")
	d := opts.Int(3, "d_period", "stoch_d")
	slowing := opts.Int(3, "slowing", "stoch_slowing")

	return &Stochastic{
		base:       newBase(IDStochastic, core.GranularityM1, k+d+slowing, opts),
		kPeriod:    max(k, 2),
		dPeriod:    max(d, 1),
		slowing:    max(slowing, 1),
		oversold:   opts.Float(20, "oversold", "stoch_oversold"),
		overbought: opts.Float(80, "overbought", "stoch_overbought"),
	}
}

func (s *Stochastic) Evaluate(_ context.Context, window core.Window) *core.Signal {
	n := len(window)

	// two output values need n >= k + slowing + d - 1
	d := min(s.dPeriod, max(1, n/5))
	slowing := min(s.slowing, max(1, n/5))
	k := min(s.kPeriod, n-slowing-d+1)
	if k < 2 {
		return nil
	}

	kValues, dValues := indicator.Stoch(window.Highs(), window.Lows(), window.Closes(), k, slowing, d)
	if len(kValues) < 2 || len(dValues) < 2 {
		return nil
	}

	ks, ds := core.Series[float64](kValues), core.Series[float64](dValues)
	meta := []core.SignalOption{
		core.WithMetadata("stoch_k", ks.Last(0)),
		core.WithMetadata("stoch_d", ds.Last(0)),
	}

	switch {
	case ks.Crossover(ds) && ks.Last(1) < s.oversold:
		return s.emit(window, core.SideBuy, 0.75,
			fmt.Sprintf("%%K crossed above %%D in oversold zone (%.1f)", ks.Last(0)), meta...)
	case ks.Crossunder(ds) && ks.Last(1) > s.overbought:
		return s.emit(window, core.SideSell, 0.75,
			fmt.Sprintf("%%K crossed below %%D in overbought zone (%.1f)", ks.Last(0)), meta...)
	}

	return nil
}
