package optimizer

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/backtesting"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
)

// ReplayEvaluator scores a parameter set by replaying a CSV file with the
// set merged into the strategy options. Every evaluation loads its own feed
// and registry, so evaluations can run in parallel.
type ReplayEvaluator struct {
	file          string
	symbol        string
	timeframe     string
	cfg           engine.BotConfig
	feedOptions   []exchange.FeedOption
	brokerOptions []exchange.PaperBrokerOption
	newRegistry   func() *strategy.Registry
}

// EvaluatorOption configures a ReplayEvaluator
type EvaluatorOption func(*ReplayEvaluator)

// WithFeedOptions is applied to the feed built for every evaluation
func WithFeedOptions(options ...exchange.FeedOption) EvaluatorOption {
	return func(e *ReplayEvaluator) {
		e.feedOptions = append(e.feedOptions, options...)
	}
}

// WithBrokerOptions is applied to the paper broker of every evaluation
func WithBrokerOptions(options ...exchange.PaperBrokerOption) EvaluatorOption {
	return func(e *ReplayEvaluator) {
		e.brokerOptions = append(e.brokerOptions, options...)
	}
}

// WithRegistryFactory replaces the built-in strategy registry
func WithRegistryFactory(factory func() *strategy.Registry) EvaluatorOption {
	return func(e *ReplayEvaluator) {
		e.newRegistry = factory
	}
}

// NewReplayEvaluator scores parameter sets by replaying file with cfg
func NewReplayEvaluator(file, symbol, timeframe string, cfg engine.BotConfig, options ...EvaluatorOption) *ReplayEvaluator {
	e := &ReplayEvaluator{
		file:        file,
		symbol:      symbol,
		timeframe:   timeframe,
		cfg:         cfg.Clone(),
		newRegistry: func() *strategy.Registry { return strategy.NewRegistry() },
	}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *ReplayEvaluator) Evaluate(ctx context.Context, params ParameterSet) (*Result, error) {
	start := time.Now()

	feed, err := exchange.NewCSVFeed(e.symbol, e.file, e.timeframe, e.feedOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}

	cfg := e.cfg.Clone()
	maps.Copy(cfg.Options, params)

	replay, err := backtesting.NewReplay(feed, cfg,
		backtesting.WithRegistry(e.newRegistry()),
		backtesting.WithBrokerOptions(e.brokerOptions...),
	).Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay failed: %w", err)
	}

	return &Result{
		Parameters: params,
		Metrics:    Metrics(replay),
		Duration:   time.Since(start),
	}, nil
}

// Metrics extracts the optimizable metrics of a replay
func Metrics(result backtesting.Result) map[MetricName]float64 {
	snapshot := result.Snapshot
	return map[MetricName]float64{
		MetricProfit:       snapshot.RealizedProfit,
		MetricWinRate:      snapshot.WinRate,
		MetricPayoff:       snapshot.Payoff,
		MetricProfitFactor: snapshot.ProfitFactor,
		MetricSQN:          snapshot.SQN,
		MetricDrawdown:     result.MaxDrawdown,
		MetricTradeCount:   float64(snapshot.TotalTrades),
		MetricFinalBalance: result.FinalBalance,
	}
}
