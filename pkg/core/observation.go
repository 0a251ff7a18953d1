package core

import (
	"fmt"
	"strconv"
	"time"
)

// Granularity is the sampling unit a strategy consumes
type Granularity string

const (
	GranularityTick Granularity = "tick"
	GranularityM1   Granularity = "M1"
	GranularityM5   Granularity = "M5"
	GranularityM15  Granularity = "M15"
	GranularityH1   Granularity = "H1"
)

// Duration returns the bar length of the granularity, zero for ticks
func (g Granularity) Duration() time.Duration {
	switch g {
	case GranularityM1:
		return time.Minute
	case GranularityM5:
		return 5 * time.Minute
	case GranularityM15:
		return 15 * time.Minute
	case GranularityH1:
		return time.Hour
	default:
		return 0
	}
}

// Observation is a normalized market sample: either an OHLC bar or a tick.
// Ticks carry Bid/Ask/Last and have Open=High=Low=Close set to the traded price.
type Observation struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	Bid  float64
	Ask  float64
	Last float64
}

// NewTick builds an Observation from a bid/ask/last sample.
// When last is zero the mid price is used as the traded price.
func NewTick(t time.Time, bid, ask, last, volume float64) Observation {
	price := last
	if price == 0 {
		price = (bid + ask) / 2
	}

	return Observation{
		Time:   t,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: volume,
		Bid:    bid,
		Ask:    ask,
		Last:   last,
	}
}

// Price returns the reference price of the observation
func (o Observation) Price() float64 { return o.Close }

// Spread returns ask minus bid, zero when the quote side is unknown
func (o Observation) Spread() float64 {
	if o.Bid == 0 || o.Ask == 0 {
		return 0
	}
	return o.Ask - o.Bid
}

// ToSlice converts an observation to a CSV record with the given precision
func (o Observation) ToSlice(precision int) []string {
	return []string{
		fmt.Sprintf("%d", o.Time.Unix()),
		strconv.FormatFloat(o.Open, 'f', precision, 64),
		strconv.FormatFloat(o.Close, 'f', precision, 64),
		strconv.FormatFloat(o.Low, 'f', precision, 64),
		strconv.FormatFloat(o.High, 'f', precision, 64),
		strconv.FormatFloat(o.Volume, 'f', precision, 64),
	}
}

// Window is a time ordered sequence of observations, oldest first
type Window []Observation

// Len returns the number of observations in the window
func (w Window) Len() int { return len(w) }

// Last returns the most recent observation; the window must not be empty
func (w Window) Last() Observation { return w[len(w)-1] }

// Head returns the window without its newest n observations
func (w Window) Head(n int) Window {
	if n >= len(w) {
		return Window{}
	}
	return w[:len(w)-n]
}

// Tail returns the newest n observations
func (w Window) Tail(n int) Window {
	if n >= len(w) {
		return w
	}
	return w[len(w)-n:]
}

// Closes returns the close prices as a series
func (w Window) Closes() Series[float64] {
	return w.project(func(o Observation) float64 { return o.Close })
}

// Highs returns the high prices as a series
func (w Window) Highs() Series[float64] {
	return w.project(func(o Observation) float64 { return o.High })
}

// Lows returns the low prices as a series
func (w Window) Lows() Series[float64] {
	return w.project(func(o Observation) float64 { return o.Low })
}

// Volumes returns the volumes as a series
func (w Window) Volumes() Series[float64] {
	return w.project(func(o Observation) float64 { return o.Volume })
}

func (w Window) project(fn func(Observation) float64) Series[float64] {
	values := make(Series[float64], len(w))
	for i, o := range w {
		values[i] = fn(o)
	}
	return values
}
