package strategy

import (
	"math"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"gonum.org/v1/gonum/stat"
)

const volatilitySamples = 20

// base carries the options every variant honors
type base struct {
	name          string
	granularity   core.Granularity
	warmup        int
	minConfidence float64
	dynamicStops  bool
	stopMult      float64
	takeMult      float64
}

func newBase(name string, granularity core.Granularity, warmup int, opts Options) base {
	return base{
		name:          name,
		granularity:   granularity,
		warmup:        warmup,
		minConfidence: opts.Float(0, "min_confidence"),
		dynamicStops:  opts.Bool(false, "dynamic_stops", "use_dynamic_sl_tp"),
		stopMult:      opts.Float(1.5, "stop_volatility_mult"),
		takeMult:      opts.Float(3.0, "take_volatility_mult"),
	}
}

func (b base) Name() string                  { return b.name }
func (b base) Granularity() core.Granularity { return b.granularity }
func (b base) WarmupPeriod() int             { return b.warmup }

// emit builds a signal at the newest observation, applying the confidence
// floor and, when enabled, volatility based stop distances.
func (b base) emit(window core.Window, side core.Side, confidence float64, reason string,
	options ...core.SignalOption) *core.Signal {

	if len(window) == 0 || confidence < b.minConfidence {
		return nil
	}

	last := window.Last()
	if last.Price() <= 0 || math.IsNaN(last.Price()) {
		return nil
	}

	if !last.Time.IsZero() {
		options = append(options, core.WithTime(last.Time))
	}

	if b.dynamicStops {
		if vol := volatility(window); vol > 0 {
			options = append(options, core.WithStops(vol*b.stopMult, vol*b.takeMult, core.StopUnitPrice))
		}
	}

	signal := core.NewSignal(side, last.Price(), confidence, reason, options...)
	signal.Strategy = b.name
	return signal
}

// volatility is the standard deviation of the latest price changes
func volatility(window core.Window) float64 {
	closes := window.Closes().LastValues(volatilitySamples + 1)
	if len(closes) < 3 {
		return 0
	}

	changes := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		changes[i-1] = closes[i] - closes[i-1]
	}

	sd := stat.StdDev(changes, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

// scaled maps an excess over a threshold into [lo, hi]
func scaled(excess, threshold, lo, hi float64) float64 {
	if threshold <= 0 {
		return lo
	}
	ratio := math.Min(1, math.Max(0, excess/(threshold*4)))
	return lo + (hi-lo)*ratio
}
