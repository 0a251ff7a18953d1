package strategy

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/samber/lo"
)

const (
	IDMACrossover = "ma_crossover"
	IDRSI         = "rsi"
	IDBollinger   = "bollinger"
	IDMACD        = "macd"
	IDStochastic  = "stochastic"
	IDBreakout    = "breakout"
	IDVWAP        = "vwap"
	IDComposite   = "composite"
	IDML          = "ml"

	// DefaultID is used when a requested id is unknown or cannot be built
	DefaultID = IDMACrossover
)

// Registry errors
var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrPredictorRequired = errors.New("strategy requires a predictor")
)

// Dependencies are shared collaborators handed to strategy factories
type Dependencies struct {
	Predictor core.Predictor
	Log       logger.Logger
}

// Factory builds a strategy from its options
type Factory func(opts Options, deps Dependencies) (Strategy, error)

// Entry describes a registered strategy
type Entry struct {
	ID          string
	Description string
	Granularity core.Granularity
	Defaults    string
	Factory     Factory
}

// Resolution is the outcome of Registry.Resolve
type Resolution struct {
	Strategy  Strategy
	Requested string
	ID        string
	FellBack  bool
	Reason    string
}

// Registry maps strategy ids and their aliases to factories
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	aliases  map[string]string
	names    map[string][]string
	fallback string
	deps     Dependencies
	log      logger.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithPredictor injects the predictor used by model backed strategies
func WithPredictor(predictor core.Predictor) RegistryOption {
	return func(r *Registry) {
		r.deps.Predictor = predictor
	}
}

// WithLogger sets the registry logger
func WithLogger(log logger.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = log
		r.deps.Log = log
	}
}

// NewRegistry creates a registry holding every built-in strategy
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		entries:  make(map[string]Entry),
		aliases:  make(map[string]string),
		names:    make(map[string][]string),
		fallback: DefaultID,
		log:      logger.Nop(),
	}
	r.deps.Log = r.log

	for _, option := range options {
		option(r)
	}

	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(Entry{
		ID: IDMACrossover, Granularity: core.GranularityTick,
		Description: "fast/slow moving average crossover",
		Defaults:    "fast_period=2 slow_period=5 ma_type=ema threshold=0.0001",
		Factory:     func(o Options, _ Dependencies) (Strategy, error) { return NewMACrossover(o), nil },
	}, "ma", "moving_average", "ma_cross", "ma_crossover_tick")

	r.Register(Entry{
		ID: IDRSI, Granularity: core.GranularityTick,
		Description: "relative strength index zones and crossings",
		Defaults:    "period=6 oversold=40 overbought=60",
		Factory:     func(o Options, _ Dependencies) (Strategy, error) { return NewRSI(o), nil },
	}, "rsi_tick", "rsi_strategy")

	r.Register(Entry{
		ID: IDBollinger, Granularity: core.GranularityM1,
		Description: "Bollinger band touches",
		Defaults:    "period=20 deviation=2.0",
		Factory:     func(o Options, _ Dependencies) (Strategy, error) { return NewBollinger(o), nil },
	}, "bb", "bollinger_bands", "bollinger_tick")

	r.Register(Entry{
		ID: IDMACD, Granularity: core.GranularityM1,
		Description: "MACD and signal line crossings",
		Defaults:    "fast_period=12 slow_period=26 signal_period=9",
		Factory:     func(o Options, _ Dependencies) (Strategy, error) { return NewMACD(o), nil },
	}, "macd_tick", "macd_strategy")

	r.Register(Entry{
		ID: IDStochastic, Granularity: core.GranularityM1,
		Description: "stochastic %K/%D crossings in extreme zones",
		Defaults:    "k_period=14 slowing=3 d_period=3 oversold=20 overbought=80",
		Factory:     func(o Options, _ Dependencies) (Strategy, error) { return NewStochastic(o), nil },
	}, "stoch", "stochastic_tick")

	r.Register(Entry{
		ID: IDBreakout, Granularity: core.GranularityTick,
		Description: "close beyond the recent high/low range",
		Defaults:    "lookback=4 threshold=0.0005",
		Factory:     func(o Options, _ Dependencies) (Strategy, error) { return NewBreakout(o), nil },
	}, "break_out", "breakout_tick")

	r.Register(Entry{
		ID: IDVWAP, Granularity: core.GranularityM1,
		Description: "reversion towards the volume weighted average price",
		Defaults:    "period=20 deviation_threshold=0.002",
		Factory:     func(o Options, _ Dependencies) (Strategy, error) { return NewVWAP(o), nil },
	}, "vwap_tick")

	r.Register(Entry{
		ID: IDComposite, Granularity: core.GranularityTick,
		Description: "agreement vote across member strategies",
		Defaults:    "members=[ma_crossover rsi breakout] min_agreement=2 boost=1.2",
		Factory:     r.newComposite,
	}, "combined", "multi", "multi_indicator")

	r.Register(Entry{
		ID: IDML, Granularity: core.GranularityM1,
		Description: "signals from the external prediction model",
		Defaults:    "min_confidence=0.6 min_expected_return=0.1 trade_hold_signals=false",
		Factory: func(o Options, d Dependencies) (Strategy, error) {
			return NewML(o, d.Predictor, d.Log)
		},
	}, "ml_prediction", "ml_enhanced", "ml_signal", "ai")
}

func (r *Registry) newComposite(opts Options, deps Dependencies) (Strategy, error) {
	ids := opts.Strings([]string{IDMACrossover, IDRSI, IDBreakout}, "members", "strategies")

	members := make([]Strategy, 0, len(ids))
	for _, requested := range ids {
		id, ok := r.Normalize(requested)
		if !ok || id == IDComposite {
			return nil, fmt.Errorf("%w: composite member %q", ErrUnknownStrategy, requested)
		}

		entry, _ := r.entry(id)
		member, err := entry.Factory(opts.Sub(id), deps)
		if err != nil {
			return nil, fmt.Errorf("composite member %s: %w", id, err)
		}
		members = append(members, member)
	}

	return NewComposite(opts, members...), nil
}

// Register adds a strategy and its aliases, replacing any previous entry
func (r *Registry) Register(entry Entry, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.ID] = entry
	r.names[entry.ID] = slices.Clone(aliases)
	r.aliases[squash(entry.ID)] = entry.ID
	for _, alias := range aliases {
		r.aliases[squash(alias)] = entry.ID
	}
}

// Normalize maps an id or alias to its registered id
func (r *Registry) Normalize(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.aliases[squash(id)]
	return canonical, ok
}

func (r *Registry) entry(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	return entry, ok
}

// Entries returns the registered strategies sorted by id
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := lo.Values(r.entries)
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })
	return entries
}

// Aliases returns the alternative names registered for id, sorted
func (r *Registry) Aliases(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases := slices.Clone(r.names[id])
	slices.Sort(aliases)
	return aliases
}

// Resolve builds the strategy registered under id. Unknown ids, and ids whose
// factory fails, resolve to the default strategy; the fallback is logged and
// reported in the Resolution.
func (r *Registry) Resolve(id, symbol string, opts Options) Resolution {
	resolution := Resolution{Requested: id}
	log := r.log.WithFields(map[string]any{"strategy": id, "symbol": symbol})

	if canonical, ok := r.Normalize(id); ok {
		entry, _ := r.entry(canonical)
		built, err := entry.Factory(opts, r.deps)
		if err == nil {
			resolution.Strategy, resolution.ID = built, canonical
			return resolution
		}
		resolution.Reason = err.Error()
	} else {
		resolution.Reason = fmt.Sprintf("%s: %q", ErrUnknownStrategy, id)
	}

	entry, _ := r.entry(r.fallback)
	fallback, _ := entry.Factory(Options{}, r.deps)
	resolution.Strategy, resolution.ID, resolution.FellBack = fallback, r.fallback, true

	log.WithField("fallback", r.fallback).Warnf("strategy fallback: %s", resolution.Reason)
	return resolution
}

// squash lower-cases an id and drops separators so that "MA-Crossover",
// "ma_crossover" and "macrossover" compare equal.
func squash(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(id)))
}
