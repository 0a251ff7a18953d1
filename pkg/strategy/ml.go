package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
)

// MLSettings tunes how predictions become signals. Returns are in percent.
type MLSettings struct {
	MinExpectedReturn float64
	UseReturnFilter   bool
	DynamicStops      bool

	// HOLD conversion
	TradeHoldSignals    bool
	HoldMargin          float64
	HoldReturnThreshold float64
	HoldMinProbability  float64

	// confidence boosting
	BoostEnabled        bool
	BoostMinProbability float64
	BoostMaxConfidence  float64
}

func mlSettingsFrom(opts Options) MLSettings {
	return MLSettings{
		MinExpectedReturn:   opts.Float(0.1, "min_expected_return"),
		UseReturnFilter:     opts.Bool(true, "use_return_filter", "use_regression_filter"),
		DynamicStops:        opts.Bool(true, "dynamic_stops", "use_dynamic_sl_tp"),
		TradeHoldSignals:    opts.Bool(false, "trade_hold_signals", "ml_trade_hold_signals"),
		HoldMargin:          opts.Float(0.1, "hold_margin"),
		HoldReturnThreshold: opts.Float(0.02, "hold_return_threshold"),
		HoldMinProbability:  opts.Float(0.25, "hold_min_probability"),
		BoostEnabled:        opts.Bool(false, "boost_enabled", "enable_signal_boost"),
		BoostMinProbability: opts.Float(0.30, "boost_min_probability"),
		BoostMaxConfidence:  opts.Float(0.8, "boost_max_confidence"),
	}
}

// ML turns predictions from an external model into signals
type ML struct {
	base
	predictor core.Predictor
	settings  MLSettings
	log       logger.Logger
}

// NewML creates the prediction driven strategy; predictor must not be nil
func NewML(opts Options, predictor core.Predictor, log logger.Logger) (*ML, error) {
	if predictor == nil {
		return nil, ErrPredictorRequired
	}
	if log == nil {
		log = logger.Nop()
	}

	b := newBase(IDML, core.GranularityM1, 60, opts)
	b.minConfidence = opts.Float(0.6, "min_confidence")
	b.dynamicStops = false

	return &ML{
		base:      b,
		predictor: predictor,
		settings:  mlSettingsFrom(opts),
		log:       log,
	}, nil
}

func (s *ML) Evaluate(ctx context.Context, window core.Window) *core.Signal {
	if len(window) == 0 {
		return nil
	}

	prediction, err := s.predictor.Predict(ctx, window)
	if err != nil {
		s.log.WithError(err).Debug("prediction unavailable")
		return nil
	}
	if prediction == nil {
		return nil
	}

	side, confidence := prediction.Side, prediction.Confidence
	reason := fmt.Sprintf("model predicts %s (%.2f), expected return %.3f%%", side, confidence, prediction.ExpectedReturn)
	options := []core.SignalOption{
		core.WithMetadata("probabilities", prediction.Probabilities),
		core.WithMetadata("expected_return", prediction.ExpectedReturn),
	}

	if side == core.SideHold {
		if !s.settings.TradeHoldSignals {
			return nil
		}
		var ok bool
		side, confidence, ok = s.convertHold(prediction)
		if !ok {
			return nil
		}
		reason = fmt.Sprintf("HOLD converted to %s (%.2f)", side, confidence)
		options = append(options, core.WithMetadata("converted_hold", true))
	}

	if !side.IsDirectional() {
		return nil
	}

	if s.settings.BoostEnabled && confidence < s.minConfidence {
		if p := probability(prediction.Probabilities, side); p >= s.settings.BoostMinProbability {
			confidence = math.Min(p*1.5, s.settings.BoostMaxConfidence)
			options = append(options, core.WithMetadata("boosted", true))
		}
	}

	if s.settings.UseReturnFilter && !s.returnAgrees(side, prediction.ExpectedReturn) {
		return nil
	}

	if s.settings.DynamicStops {
		price := window.Last().Price()
		move := math.Abs(prediction.ExpectedReturn) * price / 100
		stop := math.Max(0.5*move, 0.001*price)
		take := math.Max(1.5*move, 0.002*price)
		options = append(options, core.WithStops(stop, take, core.StopUnitPrice))
	}

	return s.emit(window, side, confidence, reason, options...)
}

// convertHold picks a direction for a HOLD prediction when the buy and sell
// probabilities are close or one of them is dominant enough.
func (s *ML) convertHold(p *core.Prediction) (core.Side, float64, bool) {
	buy, sell := p.Probabilities.Buy, p.Probabilities.Sell

	if math.Abs(buy-sell) < s.settings.HoldMargin {
		switch {
		case p.ExpectedReturn > s.settings.HoldReturnThreshold:
			return core.SideBuy, buy, true
		case p.ExpectedReturn < -s.settings.HoldReturnThreshold:
			return core.SideSell, sell, true
		}
	}

	switch {
	case buy > sell && buy > s.settings.HoldMinProbability:
		return core.SideBuy, buy, true
	case sell > buy && sell > s.settings.HoldMinProbability:
		return core.SideSell, sell, true
	}

	return core.SideHold, 0, false
}

func (s *ML) returnAgrees(side core.Side, expected float64) bool {
	if side == core.SideBuy {
		return expected >= s.settings.MinExpectedReturn
	}
	return expected <= -s.settings.MinExpectedReturn
}

func probability(p core.ClassProbabilities, side core.Side) float64 {
	switch side {
	case core.SideBuy:
		return p.Buy
	case core.SideSell:
		return p.Sell
	default:
		return p.Hold
	}
}
