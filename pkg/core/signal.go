package core

import (
	"fmt"
	"math"
	"time"
)

// StopUnit tells how a signal's stop distances are expressed
type StopUnit string

const (
	StopUnitPrice   StopUnit = "price"
	StopUnitPercent StopUnit = "percent"
)

// Signal is a directional trade recommendation produced by a strategy
type Signal struct {
	Side       Side
	Price      float64
	Confidence float64
	Reason     string
	Strategy   string
	Time       time.Time

	// Optional stop distances from the entry price. Zero means unset.
	StopLoss   float64
	TakeProfit float64
	StopUnit   StopUnit

	Metadata map[string]any
}

// SignalOption customizes a signal at construction time
type SignalOption func(*Signal)

// WithStops attaches stop loss and take profit distances to the signal
func WithStops(stopLoss, takeProfit float64, unit StopUnit) SignalOption {
	return func(s *Signal) {
		s.StopLoss = math.Abs(stopLoss)
		s.TakeProfit = math.Abs(takeProfit)
		s.StopUnit = unit
	}
}

// WithMetadata attaches an opaque key/value to the signal
func WithMetadata(key string, value any) SignalOption {
	return func(s *Signal) {
		if s.Metadata == nil {
			s.Metadata = make(map[string]any)
		}
		s.Metadata[key] = value
	}
}

// WithTime sets the signal timestamp
func WithTime(t time.Time) SignalOption {
	return func(s *Signal) {
		s.Time = t
	}
}

// NewSignal creates a signal, clamping confidence into [0, 1]
func NewSignal(side Side, price, confidence float64, reason string, options ...SignalOption) *Signal {
	signal := &Signal{
		Side:       side,
		Price:      price,
		Confidence: ClampConfidence(confidence),
		Reason:     reason,
		StopUnit:   StopUnitPrice,
		Time:       time.Now(),
	}

	for _, option := range options {
		option(signal)
	}

	return signal
}

// HasStops reports whether the signal carries its own stop distances
func (s Signal) HasStops() bool {
	return s.StopLoss > 0 || s.TakeProfit > 0
}

// Validate checks the signal is well-formed
func (s Signal) Validate() error {
	if !s.Side.IsDirectional() {
		return fmt.Errorf("%w: side %q", ErrInvalidSignal, s.Side)
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f", ErrInvalidSignal, s.Confidence)
	}
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) || s.Price <= 0 {
		return fmt.Errorf("%w: price %f", ErrInvalidSignal, s.Price)
	}
	return nil
}

func (s Signal) String() string {
	return fmt.Sprintf("%s @ %.5f (%.2f) %s", s.Side, s.Price, s.Confidence, s.Reason)
}

// ClampConfidence maps any value into [0, 1]; NaN becomes 0
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
