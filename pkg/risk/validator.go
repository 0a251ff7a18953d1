package risk

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
)

// Validator defaults
const (
	DefaultMarginFactor = 0.1
	DefaultStopBuffer   = 2.0

	lotStepTolerance = 1e-6
)

// ErrRejected is wrapped by Result.Err when any check fails
var ErrRejected = errors.New("order rejected by risk validation")

// Check is a prospective order as seen by the validator. StopLoss and
// TakeProfit are absolute prices, zero when not requested.
type Check struct {
	Signal     core.Signal
	Volume     float64
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Account    core.Account
	Symbol     core.SymbolInfo
}

// Result lists every failed check; it is OK when empty
type Result struct {
	Reasons []string
}

// OK reports whether every check passed
func (r Result) OK() bool { return len(r.Reasons) == 0 }

// Err returns nil for an accepted check, otherwise ErrRejected with all reasons
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRejected, strings.Join(r.Reasons, "; "))
}

// Validator runs the pre-submission checks
type Validator struct {
	marginFactor float64
	stopBuffer   float64
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithMarginFactor sets the fraction of notional required as margin
func WithMarginFactor(factor float64) ValidatorOption {
	return func(v *Validator) {
		v.marginFactor = factor
	}
}

// WithStopBuffer sets the multiplier applied to the broker minimum stop distance
func WithStopBuffer(buffer float64) ValidatorOption {
	return func(v *Validator) {
		v.stopBuffer = buffer
	}
}

// NewValidator creates a validator with the default margin factor and stop buffer
func NewValidator(options ...ValidatorOption) *Validator {
	v := &Validator{
		marginFactor: DefaultMarginFactor,
		stopBuffer:   DefaultStopBuffer,
	}
	for _, option := range options {
		option(v)
	}
	return v
}

// StopBuffer returns the configured safety multiplier
func (v *Validator) StopBuffer() float64 { return v.stopBuffer }

// Validate evaluates all checks and collects every failure
func (v *Validator) Validate(c Check) Result {
	var result Result
	reject := func(format string, args ...any) {
		result.Reasons = append(result.Reasons, fmt.Sprintf(format, args...))
	}

	entry := c.Entry
	if entry <= 0 {
		entry = c.Signal.Price
	}

	// margin
	required := c.Volume * entry * v.marginFactor
	available := c.Account.FreeMargin
	if available <= 0 {
		available = c.Account.Balance
	}
	if required > available {
		reject("insufficient margin: required %.2f, available %.2f", required, available)
	}

	// lot bounds and step
	sym := c.Symbol
	switch {
	case c.Volume <= 0:
		reject("lot size %.4f must be positive", c.Volume)
	case sym.MinLot > 0 && c.Volume < sym.MinLot:
		reject("lot size %.4f below minimum lot %.4f", c.Volume, sym.MinLot)
	case sym.MaxLot > 0 && c.Volume > sym.MaxLot:
		reject("lot size %.4f above maximum lot %.4f", c.Volume, sym.MaxLot)
	}
	if sym.LotStep > 0 && c.Volume > 0 {
		steps := c.Volume / sym.LotStep
		if math.Abs(steps-math.Round(steps)) > lotStepTolerance {
			reject("lot size %.4f not a multiple of lot step %.4f", c.Volume, sym.LotStep)
		}
	}

	// stop distances
	minDistance := sym.MinStopDistance() * v.stopBuffer
	if c.StopLoss != 0 {
		if d := math.Abs(entry - c.StopLoss); d < minDistance {
			reject("stop loss distance %.5f below minimum %.5f", d, minDistance)
		}
		if !onLossSide(c.Signal.Side, entry, c.StopLoss) {
			reject("stop loss %.5f on the wrong side of entry %.5f", c.StopLoss, entry)
		}
	}
	if c.TakeProfit != 0 {
		if d := math.Abs(c.TakeProfit - entry); d < minDistance {
			reject("take profit distance %.5f below minimum %.5f", d, minDistance)
		}
		if onLossSide(c.Signal.Side, entry, c.TakeProfit) {
			reject("take profit %.5f on the wrong side of entry %.5f", c.TakeProfit, entry)
		}
	}

	if !sym.Tradable {
		reject("symbol %s is not tradable", sym.Symbol)
	}

	return result
}

func onLossSide(side core.Side, entry, price float64) bool {
	if side == core.SideSell {
		return price > entry
	}
	return price < entry
}
