package core

import (
	"context"
	"time"
)

// WindowRequest selects the observations returned by Broker.Window.
// Since bounds tick windows; Count bounds bar windows. Both may be set.
type WindowRequest struct {
	Symbol      string
	Granularity Granularity
	Count       int
	Since       time.Time
}

// Broker is the trading terminal the engine talks to. Implementations must be
// safe for concurrent use by several engines.
type Broker interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	Window(ctx context.Context, req WindowRequest) (Window, error)
	Account(ctx context.Context) (Account, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	DealsSince(ctx context.Context, since time.Time) ([]Deal, error)
	OpenPositions(ctx context.Context, symbol string) ([]Position, error)
}

// ClassProbabilities holds the predictor's per-class probabilities
type ClassProbabilities struct {
	Hold float64 `json:"hold"`
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

// Prediction is the output of a Predictor
type Prediction struct {
	Side           Side               `json:"signal"`
	Confidence     float64            `json:"confidence"`
	ExpectedReturn float64            `json:"expected_return"` // percent
	Probabilities  ClassProbabilities `json:"signal_probabilities"`
	FutureOHLC     []Observation      `json:"-"`
	CurrentPrice   float64            `json:"current_price"`
}

// Predictor produces a directional forecast from a market window
type Predictor interface {
	Predict(ctx context.Context, window Window) (*Prediction, error)
}
