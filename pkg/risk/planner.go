package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
)

// DistanceMode tells how configured stop distances are expressed
type DistanceMode string

const (
	DistancePips    DistanceMode = "pips"
	DistancePercent DistanceMode = "percent"
)

// ParseDistanceMode accepts "pips" or "percent", case-insensitively
func ParseDistanceMode(value string) (DistanceMode, error) {
	switch DistanceMode(strings.ToLower(strings.TrimSpace(value))) {
	case DistancePips, "pip", "points":
		return DistancePips, nil
	case DistancePercent, "percentage", "pct":
		return DistancePercent, nil
	}
	return "", fmt.Errorf("unknown distance mode %q", value)
}

// Stops are absolute stop loss and take profit prices for an entry
type Stops struct {
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Widened    bool
}

// Planner turns distances into stop prices respecting the broker minimum
type Planner struct {
	Mode       DistanceMode
	StopLoss   float64
	TakeProfit float64
	StopBuffer float64
	AutoAdjust bool
}

// Plan computes stop prices for a signal filled at the quote. A signal's
// own stop distances take precedence over the configured ones.
func (p Planner) Plan(signal core.Signal, quote core.Quote, sym core.SymbolInfo) Stops {
	entry := quote.EntryPrice(signal.Side)
	if entry <= 0 {
		entry = signal.Price
	}

	var sl, tp float64
	if signal.HasStops() {
		sl = toPrice(signal.StopLoss, signal.StopUnit, entry)
		tp = toPrice(signal.TakeProfit, signal.StopUnit, entry)
	} else {
		switch p.Mode {
		case DistancePercent:
			sl, tp = entry*p.StopLoss/100, entry*p.TakeProfit/100
		default:
			sl, tp = p.StopLoss*sym.Pip(), p.TakeProfit*sym.Pip()
		}
	}

	stops := Stops{Entry: entry}
	if p.AutoAdjust {
		buffer := p.StopBuffer
		if buffer <= 0 {
			buffer = DefaultStopBuffer
		}
		// a small margin over the buffered minimum survives price rounding
		floor := sym.MinStopDistance()*buffer + sym.Point
		if sl > 0 && sl < floor {
			sl, stops.Widened = floor, true
		}
		if tp > 0 && tp < floor {
			tp, stops.Widened = floor, true
		}
	}

	direction := 1.0
	if signal.Side == core.SideSell {
		direction = -1
	}
	if sl > 0 {
		stops.StopLoss = sym.NormalizePrice(entry - direction*sl)
	}
	if tp > 0 {
		stops.TakeProfit = sym.NormalizePrice(entry + direction*tp)
	}

	return stops
}

func toPrice(distance float64, unit core.StopUnit, entry float64) float64 {
	if unit == core.StopUnitPercent {
		return entry * distance / 100
	}
	return math.Abs(distance)
}
