package strategy

import (
	"context"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
)

// Strategy turns a window of market observations into an optional signal.
// Implementations must accept windows of any length, returning nil when the
// data is insufficient instead of failing.
type Strategy interface {
	// Name is the registry id of the strategy.
	Name() string
	// Granularity is the observation type the strategy consumes.
	Granularity() core.Granularity
	// WarmupPeriod is the nominal window length the strategy wants.
	// Shorter windows are accepted with shrunk indicator periods.
	WarmupPeriod() int
	// Evaluate returns a signal or nil.
	Evaluate(ctx context.Context, window core.Window) *core.Signal
}
