package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/order"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
)

// windowRetryFactor widens the lookback once when the window is too small
const windowRetryFactor = 3

// State is the lifecycle state of an engine
type State string

// Lifecycle states
const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

var (
	// ErrStopTimeout is returned by Stop when the loop outlives the stop timeout
	ErrStopTimeout = errors.New("engine loop did not stop in time")
	// ErrStillStopping is returned by Start while the loop of the previous
	// session has not exited yet
	ErrStillStopping = errors.New("engine loop of the previous session is still running")
)

// Status is a read-only view of an engine
type Status struct {
	ID           string                    `json:"id"`
	State        State                     `json:"state"`
	Config       BotConfig                 `json:"config"`
	Snapshot     order.PerformanceSnapshot `json:"snapshot"`
	ActiveTrades []order.ActiveTrade       `json:"active_trades"`
	LastQuote    *core.Quote               `json:"last_quote,omitempty"`
	LastSignal   *core.Signal              `json:"last_signal,omitempty"`
	StartedAt    time.Time                 `json:"started_at"`
	Tag          int64                     `json:"tag"`
	StrategyName string                    `json:"strategy"`
}

// Running reports whether the engine loop is active
func (s Status) Running() bool { return s.State == StateRunning }

// Engine polls the broker, evaluates the configured strategy and trades its
// signals for one symbol. One engine runs one background loop.
type Engine struct {
	id       string
	broker   core.Broker
	registry *strategy.Registry
	ledger   *order.Ledger
	throttle *order.Throttle
	log      logger.Logger
	events   *bus
	clock    func() time.Time
	manual   bool

	// guards everything below
	mu            sync.RWMutex
	cfg           BotConfig
	strategyDirty bool
	state         State
	tag           int64
	startedAt     time.Time
	cancel        context.CancelFunc
	done          chan struct{}
	lastQuote     *core.Quote
	lastSignal    *core.Signal
	strategyName  string

	// owned by the loop
	strat         strategy.Strategy
	submitter     *order.Submitter
	lastRefresh   time.Time
	cooldownUntil time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithObserver subscribes observers before the engine starts
func WithObserver(observers ...Observer) Option {
	return func(e *Engine) {
		for _, observer := range observers {
			e.events.subscribe(observer)
		}
	}
}

// WithRegistry sets the strategy registry; a default one is built otherwise
func WithRegistry(registry *strategy.Registry) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

// WithLedger sets the trade ledger; a store-less one is built otherwise
func WithLedger(ledger *order.Ledger) Option {
	return func(e *Engine) {
		e.ledger = ledger
	}
}

// WithClock replaces the wall clock, e.g. with simulated time in replays
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithManualStepping makes Start skip the background loop; the caller
// drives iterations through Step.
func WithManualStepping() Option {
	return func(e *Engine) {
		e.manual = true
	}
}

// New creates a stopped engine
func New(id string, broker core.Broker, cfg BotConfig, options ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		id:     id,
		broker: broker,
		log:    logger.Nop(),
		events: &bus{},
		clock:  time.Now,
		cfg:    cfg.Clone(),
		state:  StateStopped,
	}
	for _, option := range options {
		option(e)
	}

	e.log = e.log.WithFields(map[string]any{"engine_id": id, "symbol": cfg.Symbol})
	e.events.log = e.log
	if e.registry == nil {
		e.registry = strategy.NewRegistry(strategy.WithLogger(e.log))
	}
	if e.ledger == nil {
		e.ledger = order.NewLedger(order.WithLedgerLogger(e.log))
	}
	e.throttle = order.NewThrottle(cfg.MaxOrdersPerMinute)

	return e, nil
}

// ID returns the engine id
func (e *Engine) ID() string { return e.id }

// Subscribe registers an observer
func (e *Engine) Subscribe(observer Observer) {
	e.events.subscribe(observer)
}

func (e *Engine) emit(kind Kind, payload any) {
	e.events.publish(Event{Kind: kind, EngineID: e.id, Time: e.clock(), Payload: payload})
}

// Config returns the current configuration snapshot
func (e *Engine) Config() BotConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Clone()
}

// Status returns a snapshot of the engine state
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Status{
		ID:           e.id,
		State:        e.state,
		Config:       e.cfg.Clone(),
		Snapshot:     e.ledger.Snapshot(),
		ActiveTrades: e.ledger.ActiveTrades(),
		LastQuote:    e.lastQuote,
		LastSignal:   e.lastSignal,
		StartedAt:    e.startedAt,
		Tag:          e.tag,
		StrategyName: e.strategyName,
	}
}

// Start begins a session: it issues the correlation tag, opens the ledger
// session and spawns the polling loop. Starting a running engine does nothing.
// Start fails with ErrStillStopping while a loop abandoned by a timed out Stop
// is still inside its last iteration.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.RLock()
	cfg := e.cfg.Clone()
	busy := e.busy()
	e.mu.RUnlock()
	if busy != nil {
		return startError(busy)
	}

	// the broker is read before taking the lock so status readers never wait on it
	var balance float64
	err := e.call(ctx, cfg.CallTimeout, func(ctx context.Context) error {
		account, err := e.broker.Account(ctx)
		balance = account.Balance
		return err
	})
	if err != nil {
		e.log.WithError(err).Warn("account unavailable at start")
	}

	e.mu.Lock()
	if busy := e.busy(); busy != nil {
		e.mu.Unlock()
		return startError(busy)
	}

	cfg = e.cfg.Clone()
	now := e.clock()
	tag := issueTag(cfg.BotID, now)

	e.ledger.BeginSession(tag, cfg.CommentPrefix(), now, balance)
	e.submitter = order.NewSubmitter(e.broker,
		order.WithTag(tag, cfg.CommentPrefix()),
		order.WithCallTimeout(cfg.CallTimeout),
		order.WithSubmitterLogger(e.log),
	)
	e.strat = nil
	e.strategyDirty = true
	e.lastRefresh = time.Time{}
	e.cooldownUntil = time.Time{}

	e.tag, e.startedAt, e.state = tag, now, StateRunning

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.log.WithField("tag", tag).Infof("engine started: %s on %s", cfg.Strategy, cfg.Symbol)
	e.emit(KindStarted, Lifecycle{Tag: tag, Symbol: cfg.Symbol, Strategy: cfg.Strategy, Snapshot: e.ledger.Snapshot()})

	if e.manual {
		close(done)
		return nil
	}

	go e.run(loopCtx, done)
	return nil
}

var errAlreadyRunning = errors.New("engine already running")

// startError hides the already running case, which is not an error for Start
func startError(err error) error {
	if errors.Is(err, errAlreadyRunning) {
		return nil
	}
	return err
}

// busy tells why a session cannot start. The caller holds the lock.
func (e *Engine) busy() error {
	if e.state == StateRunning {
		return errAlreadyRunning
	}
	if e.done == nil {
		return nil
	}
	select {
	case <-e.done:
		return nil
	default:
		return ErrStillStopping
	}
}

// Stop signals the loop to exit and waits for it up to the configured stop
// timeout. Stopping a stopped engine does nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}

	e.state = StateStopped
	cancel, done, timeout, tag := e.cancel, e.done, e.cfg.StopTimeout, e.tag
	symbol, strategyID := e.cfg.Symbol, e.cfg.Strategy
	e.mu.Unlock()

	cancel()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = ErrStopTimeout
		e.log.Warnf("engine loop still running after %s", timeout)
	}

	lifecycle := Lifecycle{Tag: tag, Symbol: symbol, Strategy: strategyID, Snapshot: e.ledger.Snapshot()}
	if err != nil {
		lifecycle.Reason = err.Error()
	}
	e.log.Info("engine stopped")
	e.emit(KindStopped, lifecycle)
	return err
}

// UpdateConfig merges a partial update into the configuration. The new
// config replaces the old one as a whole; on a validation error nothing
// changes. Rejected fields are reported in the result and in the emitted
// config_updated event.
func (e *Engine) UpdateConfig(partial map[string]any) (Update, error) {
	e.mu.Lock()
	update, err := ApplyUpdate(e.cfg, partial)
	if err != nil {
		e.mu.Unlock()
		e.log.WithError(err).Warn("config update rejected")
		e.emit(KindConfigUpdated, update)
		return update, err
	}

	e.cfg = update.Config.Clone()
	if update.StrategyChanged {
		e.strategyDirty = true
	}
	e.throttle.SetLimit(update.Config.MaxOrdersPerMinute)
	e.mu.Unlock()

	for _, rejected := range update.Rejected {
		e.log.WithField("field", rejected.Field).Warnf("config field rejected: %s", rejected.Reason)
	}
	if len(update.Changed) > 0 {
		e.log.Infof("config updated: %v", update.Changed)
	}
	e.emit(KindConfigUpdated, update)
	return update, nil
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if ctx.Err() != nil {
			return
		}

		delay := e.Step(ctx).Delay
		timer.Reset(delay)
	}
}

// Report summarizes one iteration
type Report struct {
	Quote       *core.Quote
	Signal      *core.Signal
	Executed    *order.ActiveTrade
	Override    bool
	Diagnostics []Diagnostic
	Delay       time.Duration
}

// Step runs a single iteration. A panic inside the iteration is recovered,
// reported and turned into the error backoff delay.
func (e *Engine) Step(ctx context.Context) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("iteration panic: %v", r)
			report.Delay = e.Config().ErrorBackoff
			e.emit(KindTradeError, TradeError{Code: CodeIterationPanic, Message: fmt.Sprint(r)})
		}
	}()
	return e.iterate(ctx)
}

// call runs fn with the per-call broker timeout
func (e *Engine) call(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}
