package strategy

import (
	"context"
	"fmt"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/indicator"
)

// RSI is a momentum oscillator strategy. Crossing back out of an extreme
// zone gives the strongest signal; sitting inside it gives a weaker one.
type RSI struct {
	base
	period     int
	oversold   float64
	overbought float64
}

// NewRSI reads period and thresholds from opts
func NewRSI(opts Options) *RSI {
	period := opts.Int(6, "period", "rsi_period")
	return &RSI{
		base:       newBase(IDRSI, core.GranularityTick, period+2, opts),
		period:     max(period, 2),
		oversold:   opts.Float(40, "oversold", "rsi_oversold"),
		overbought: opts.Float(60, "overbought", "rsi_overbought"),
	}
}

func (s *RSI) Evaluate(_ context.Context, window core.Window) *core.Signal {
	// two RSI values need period+2 closes
	period := indicator.AdaptPeriod(s.period, len(window)-2, 2)
	if period == 0 {
		return nil
	}

	values := indicator.RSI(window.Closes(), period)
	if len(values) < 2 {
		return nil
	}

	rsi := core.Series[float64](values)
	now, prev := rsi.Last(0), rsi.Last(1)
	meta := core.WithMetadata("rsi", now)

	switch {
	case prev < s.oversold && now >= s.oversold:
		return s.emit(window, core.SideBuy, 0.85, fmt.Sprintf("RSI crossed up through %.0f (%.1f)", s.oversold, now), meta)
	case prev > s.overbought && now <= s.overbought:
		return s.emit(window, core.SideSell, 0.85, fmt.Sprintf("RSI crossed down through %.0f (%.1f)", s.overbought, now), meta)
	case now < s.oversold:
		return s.emit(window, core.SideBuy, 0.75, fmt.Sprintf("RSI oversold (%.1f)", now), meta)
	case now > s.overbought:
		return s.emit(window, core.SideSell, 0.75, fmt.Sprintf("RSI overbought (%.1f)", now), meta)
	}

	return nil
}
