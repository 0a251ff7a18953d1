package backtesting

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/order"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/storage"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
	"github.com/schollz/progressbar/v3"
)

const replayEngineID = "replay"

// Result summarizes a replay
type Result struct {
	Symbol         string
	Strategy       string
	Bars           int
	Start, End     time.Time
	Signals        int
	Executions     int
	Diagnostics    map[string]int
	Snapshot       order.PerformanceSnapshot
	Trades         []core.CompletedTrade
	InitialBalance float64
	FinalBalance   float64
	MaxDrawdown    float64
	DrawdownStart  time.Time
	DrawdownEnd    time.Time
}

// Replay drives an engine bar by bar over a CSV feed through a PaperBroker.
// The feed is the clock, so a replay never sleeps and always produces the
// same trades for the same file and config.
type Replay struct {
	feed          *exchange.CSVFeed
	cfg           engine.BotConfig
	registry      *strategy.Registry
	brokerOptions []exchange.PaperBrokerOption
	observers     []engine.Observer
	log           logger.Logger
	progress      io.Writer
}

// ReplayOption configures a Replay
type ReplayOption func(*Replay)

// WithRegistry replaces the default strategy registry
func WithRegistry(registry *strategy.Registry) ReplayOption {
	return func(r *Replay) {
		r.registry = registry
	}
}

// WithBrokerOptions customizes the simulated broker
func WithBrokerOptions(options ...exchange.PaperBrokerOption) ReplayOption {
	return func(r *Replay) {
		r.brokerOptions = append(r.brokerOptions, options...)
	}
}

// WithObserver subscribes observers to the replayed engine
func WithObserver(observers ...engine.Observer) ReplayOption {
	return func(r *Replay) {
		r.observers = append(r.observers, observers...)
	}
}

// WithReplayLogger sets the replay logger
func WithReplayLogger(log logger.Logger) ReplayOption {
	return func(r *Replay) {
		r.log = log
	}
}

// WithReplayProgress draws a progress bar on w
func WithReplayProgress(w io.Writer) ReplayOption {
	return func(r *Replay) {
		r.progress = w
	}
}

// NewReplay prepares a replay of cfg over the bars of feed
func NewReplay(feed *exchange.CSVFeed, cfg engine.BotConfig, options ...ReplayOption) *Replay {
	r := &Replay{
		feed: feed,
		cfg:  cfg.Clone(),
		log:  logger.Nop(),
	}
	for _, option := range options {
		option(r)
	}
	if r.registry == nil {
		r.registry = strategy.NewRegistry(strategy.WithLogger(r.log))
	}

	r.cfg.Symbol = feed.Symbol()
	// tick strategies see bars on a replay: size their lookback in bars
	if step := int(feed.Granularity().Duration() / time.Second); step > 0 {
		r.cfg.LookbackSeconds = max(r.cfg.LookbackSeconds, r.cfg.LookbackBars*step)
	}
	return r
}

// Run replays the whole feed. Positions still open at the last bar are closed
// at its price so every trade is accounted for.
func (r *Replay) Run(ctx context.Context) (Result, error) {
	store, err := storage.FromMemory()
	if err != nil {
		return Result{}, err
	}
	store.SetLogger(r.log)

	ledger := order.NewLedger(order.WithTradeStore(store), order.WithLedgerLogger(r.log))
	brokerOptions := append([]exchange.PaperBrokerOption{
		exchange.WithPaperClock(r.feed.Now),
		exchange.WithPaperLogger(r.log),
	}, r.brokerOptions...)
	broker := exchange.NewPaperBroker(r.feed, brokerOptions...)

	result := Result{
		Symbol:         r.feed.Symbol(),
		Diagnostics:    make(map[string]int),
		InitialBalance: broker.InitialBalance(),
	}

	options := []engine.Option{
		engine.WithRegistry(r.registry),
		engine.WithLedger(ledger),
		engine.WithClock(r.feed.Now),
		engine.WithLogger(r.log),
		engine.WithManualStepping(),
		engine.WithObserver(r.observers...),
	}

	eng, err := engine.New(replayEngineID, broker, r.cfg, options...)
	if err != nil {
		return Result{}, err
	}

	r.feed.Seek(0)
	result.Start = r.feed.Now()
	if err := eng.Start(ctx); err != nil {
		return Result{}, err
	}

	bar := r.newProgressBar(r.feed.Len())
	for {
		if err := ctx.Err(); err != nil {
			_ = eng.Stop()
			return Result{}, err
		}

		report := eng.Step(ctx)
		result.Bars++
		if report.Signal != nil {
			result.Signals++
		}
		if report.Executed != nil {
			result.Executions++
		}
		for _, d := range report.Diagnostics {
			result.Diagnostics[d.Code]++
		}
		_ = bar.Add(1)

		if !r.feed.Advance() {
			break
		}
	}
	_ = bar.Finish()
	result.End = r.feed.Now()
	result.Strategy = eng.Status().StrategyName

	snapshot, err := r.settle(ctx, broker, ledger)
	if err != nil {
		_ = eng.Stop()
		return Result{}, err
	}
	if err := eng.Stop(); err != nil {
		r.log.WithError(err).Warn("replay engine stop")
	}

	trades, err := store.Trades()
	if err != nil {
		return Result{}, fmt.Errorf("read trades: %w", err)
	}

	result.Snapshot = snapshot
	result.Trades = trades
	result.FinalBalance = snapshot.Balance
	result.MaxDrawdown, result.DrawdownStart, result.DrawdownEnd = broker.MaxDrawdown()
	return result, nil
}

// settle closes leftover positions and folds the final history into the ledger
func (r *Replay) settle(ctx context.Context, broker *exchange.PaperBroker, ledger *order.Ledger) (order.PerformanceSnapshot, error) {
	positions, err := broker.OpenPositions(ctx, "")
	if err != nil {
		return order.PerformanceSnapshot{}, err
	}
	for _, position := range positions {
		if err := broker.ClosePosition(ctx, position.Ticket); err != nil {
			return order.PerformanceSnapshot{}, err
		}
	}

	deals, err := broker.DealsSince(ctx, ledger.SessionStart())
	if err != nil {
		return order.PerformanceSnapshot{}, err
	}
	account, err := broker.Account(ctx)
	if err != nil {
		return order.PerformanceSnapshot{}, err
	}
	return ledger.Refresh(deals, nil, account, r.feed.Now()), nil
}

func (r *Replay) newProgressBar(total int) *progressbar.ProgressBar {
	if r.progress == nil {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.progress),
		progressbar.OptionSetDescription("replaying"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
	)
}
