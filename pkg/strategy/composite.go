package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/samber/lo"
)

const compositeConfidenceCap = 0.95

// Composite votes across member strategies and only trades when enough of
// them agree on a direction.
type Composite struct {
	base
	members      []Strategy
	minAgreement int
	boost        float64
}

// NewComposite builds a composite over already constructed members
func NewComposite(opts Options, members ...Strategy) *Composite {
	warmup := 0
	for _, m := range members {
		warmup = max(warmup, m.WarmupPeriod())
	}

	return &Composite{
		base:         newBase(IDComposite, core.GranularityTick, warmup, opts),
		members:      members,
		minAgreement: max(opts.Int(2, "min_agreement"), 2),
		boost:        opts.Float(1.2, "boost", "confidence_boost"),
	}
}

func (s *Composite) Evaluate(ctx context.Context, window core.Window) *core.Signal {
	if len(window) == 0 || len(s.members) < s.minAgreement {
		return nil
	}

	signals := make([]*core.Signal, 0, len(s.members))
	for _, member := range s.members {
		if signal := member.Evaluate(ctx, window); signal != nil && signal.Side.IsDirectional() {
			signals = append(signals, signal)
		}
	}

	bySide := lo.GroupBy(signals, func(s *core.Signal) core.Side { return s.Side })
	buys, sells := bySide[core.SideBuy], bySide[core.SideSell]

	var agreeing []*core.Signal
	var side core.Side
	switch {
	case len(buys) >= s.minAgreement && len(buys) > len(sells):
		agreeing, side = buys, core.SideBuy
	case len(sells) >= s.minAgreement && len(sells) > len(buys):
		agreeing, side = sells, core.SideSell
	default:
		return nil
	}

	mean := lo.SumBy(agreeing, func(s *core.Signal) float64 { return s.Confidence }) / float64(len(agreeing))
	confidence := min(mean*s.boost, compositeConfidenceCap)
	names := lo.Map(agreeing, func(s *core.Signal, _ int) string { return s.Strategy })

	return s.emit(window, side, confidence,
		fmt.Sprintf("%d/%d strategies agree: %s", len(agreeing), len(s.members), strings.Join(names, ", ")),
		core.WithMetadata("agreeing", names),
	)
}
