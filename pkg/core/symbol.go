package core

import (
	"math"
	"time"
)

// brokerStopFloorPoints is the minimum stop distance assumed when the
// broker reports a smaller (or zero) stops level.
const brokerStopFloorPoints = 100

// Quote is the current top of book for a symbol
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Spread returns ask minus bid
func (q Quote) Spread() float64 { return q.Ask - q.Bid }

// Mid returns the middle price between bid and ask
func (q Quote) Mid() float64 { return (q.Bid + q.Ask) / 2 }

// SpreadPoints returns the spread expressed in broker points
func (q Quote) SpreadPoints(point float64) int {
	if point <= 0 {
		return 0
	}
	return int(math.Round(q.Spread() / point))
}

// EntryPrice returns the price an order on the given side would fill at
func (q Quote) EntryPrice(side Side) float64 {
	if side == SideSell {
		return q.Bid
	}
	return q.Ask
}

// SymbolInfo contains the trading constraints the broker declares for a symbol
type SymbolInfo struct {
	Symbol            string
	Point             float64
	Digits            int
	MinLot            float64
	MaxLot            float64
	LotStep           float64
	StopsLevelPoints  int
	FreezeLevelPoints int
	Tradable          bool
}

// Pip returns the pip size, ten points
func (s SymbolInfo) Pip() float64 { return s.Point * 10 }

// MinStopDistancePoints returns the minimum distance, in points, between the
// entry price and a stop loss or take profit.
func (s SymbolInfo) MinStopDistancePoints() int {
	return max(s.StopsLevelPoints, s.FreezeLevelPoints, brokerStopFloorPoints)
}

// MinStopDistance returns the minimum stop distance in price units
func (s SymbolInfo) MinStopDistance() float64 {
	return float64(s.MinStopDistancePoints()) * s.Point
}

// NormalizePrice rounds a price to the symbol's digits
func (s SymbolInfo) NormalizePrice(price float64) float64 {
	if s.Digits <= 0 {
		return price
	}
	pow := math.Pow(10, float64(s.Digits))
	return math.Round(price*pow) / pow
}

// Account summarizes the trading account
type Account struct {
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
	Currency   string
}
