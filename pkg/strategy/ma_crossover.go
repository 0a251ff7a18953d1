package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/indicator"
)

// MACrossover signals when a fast moving average crosses a slow one
type MACrossover struct {
	base
	fastPeriod int
	slowPeriod int
	maType     indicator.MaType
	threshold  float64
}

// NewMACrossover reads the fast and slow periods from opts
func NewMACrossover(opts Options) *MACrossover {
	fast := opts.Int(2, "fast_period", "ma_fast", "ma_fast_period")
	slow := opts.Int(5, "slow_period", "ma_slow", "ma_slow_period")
	if fast > slow {
		fast, slow = slow, fast
	}

	maType := indicator.TypeEMA
	if opts.String("ema", "ma_type") == "sma" {
		maType = indicator.TypeSMA
	}

	return &MACrossover{
		base:       newBase(IDMACrossover, core.GranularityTick, slow+1, opts),
		fastPeriod: max(fast, 1),
		slowPeriod: max(slow, 1),
		maType:     maType,
		threshold:  opts.Float(0.0001, "threshold", "ma_threshold"),
	}
}

// spread returns fast minus slow average over closes, with both periods
// shrunk to what the data allows.
func (s *MACrossover) spread(closes []float64) (fast, slow float64, ok bool) {
	if len(closes) == 0 {
		return 0, 0, false
	}

	slowPeriod := indicator.AdaptPeriod(s.slowPeriod, len(closes), 1)
	fastPeriod := indicator.AdaptPeriod(s.fastPeriod, max(slowPeriod-1, 1), 1)

	fastMA := indicator.MA(closes, fastPeriod, s.maType)
	slowMA := indicator.MA(closes, slowPeriod, s.maType)
	if len(fastMA) == 0 || len(slowMA) == 0 {
		return 0, 0, false
	}

	return fastMA[len(fastMA)-1], slowMA[len(slowMA)-1], true
}

func (s *MACrossover) Evaluate(_ context.Context, window core.Window) *core.Signal {
	if len(window) < 2 {
		return nil
	}

	closes := window.Closes()
	fastNow, slowNow, ok := s.spread(closes)
	if !ok {
		return nil
	}
	fastPrev, slowPrev, ok := s.spread(closes[:len(closes)-1])
	if !ok {
		return nil
	}

	nowDiff := fastNow - slowNow
	prevDiff := fastPrev - slowPrev

	var side core.Side
	switch {
	case nowDiff > 0 && prevDiff <= 0:
		side = core.SideBuy
	case nowDiff < 0 && prevDiff >= 0:
		side = core.SideSell
	default:
		return nil
	}

	confidence := 0.65
	if slowNow != 0 && math.Abs(nowDiff/slowNow) > s.threshold {
		confidence = 0.75
	}

	return s.emit(window, side, confidence,
		fmt.Sprintf("MA crossover: fast %.5f vs slow %.5f", fastNow, slowNow),
		core.WithMetadata("fast_ma", fastNow),
		core.WithMetadata("slow_ma", slowNow),
	)
}
