package core

import "time"

// Side is the direction of a signal, order, deal or position
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	SideHold Side = "HOLD"
)

// Opposite returns the closing side for a directional side
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideHold
	}
}

// IsDirectional reports whether the side is BUY or SELL
func (s Side) IsDirectional() bool {
	return s == SideBuy || s == SideSell
}

// FillMode is the broker-side order matching policy
type FillMode string

const (
	FillReturn FillMode = "RETURN"
	FillIOC    FillMode = "IOC"
	FillFOK    FillMode = "FOK"
)

// FillModes lists the fill modes in submission priority order
var FillModes = []FillMode{FillReturn, FillIOC, FillFOK}

// OrderRequest is a market order sent to the broker
type OrderRequest struct {
	Symbol     string
	Side       Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Deviation  int
	Magic      int64
	Comment    string
	FillMode   FillMode
}

// HasStops reports whether the request carries stop loss or take profit
func (r OrderRequest) HasStops() bool {
	return r.StopLoss != 0 || r.TakeProfit != 0
}

// OrderResult is the broker response to an order request
type OrderResult struct {
	Code    RetCode
	Ticket  int64
	Price   float64
	Volume  float64
	Comment string
}

// DealEntry marks whether a deal opens or closes a position
type DealEntry string

const (
	DealEntryIn  DealEntry = "in"
	DealEntryOut DealEntry = "out"
)

// Deal is an executed fill in the broker history
type Deal struct {
	Ticket     int64
	PositionID int64
	Symbol     string
	Side       Side
	Entry      DealEntry
	Volume     float64
	Price      float64
	Profit     float64
	Commission float64
	Swap       float64
	Magic      int64
	Comment    string
	Time       time.Time
}

// NetProfit returns profit including commission and swap
func (d Deal) NetProfit() float64 {
	return d.Profit + d.Commission + d.Swap
}

// Position is an open position on the account
type Position struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Volume     float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
	Profit     float64
	Magic      int64
	Comment    string
	OpenTime   time.Time
}

// CompletedTrade is a closed position reconstructed from its deals
type CompletedTrade struct {
	PositionID int64     `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Volume     float64   `json:"volume"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	OpenTime   time.Time `json:"open_time"`
	CloseTime  time.Time `json:"close_time"`
	Profit     float64   `json:"profit"`
	Deals      int       `json:"deals"`
}

// ProfitPercent returns the profit relative to the entry notional
func (t CompletedTrade) ProfitPercent() float64 {
	notional := t.EntryPrice * t.Volume
	if notional == 0 {
		return 0
	}
	return t.Profit / notional * 100
}
