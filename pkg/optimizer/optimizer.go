package optimizer

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/samber/lo"
)

// ParameterType defines the data type of a parameter
type ParameterType string

const (
	TypeInt         ParameterType = "int"
	TypeFloat       ParameterType = "float"
	TypeBool        ParameterType = "bool"
	TypeCategorical ParameterType = "categorical"
)

// Parameter is a strategy option the search varies
type Parameter struct {
	Name    string
	Type    ParameterType
	Min     float64  // numeric parameters
	Max     float64  // numeric parameters
	Options []string // categorical parameters
}

// ParseParameter reads a parameter definition:
//
//	period=int:5:30
//	deviation=float:1.5:3
//	confirm=bool
//	ma_type=ema|sma|wma
func ParseParameter(definition string) (Parameter, error) {
	name, rest, ok := strings.Cut(definition, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || rest == "" {
		return Parameter{}, fmt.Errorf("invalid parameter %q: want name=type:min:max", definition)
	}

	parts := strings.Split(rest, ":")
	switch ParameterType(parts[0]) {
	case TypeBool:
		return Parameter{Name: name, Type: TypeBool}, nil
	case TypeInt, TypeFloat:
		if len(parts) != 3 {
			return Parameter{}, fmt.Errorf("invalid parameter %q: want %s:min:max", definition, parts[0])
		}
		low, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return Parameter{}, fmt.Errorf("invalid minimum of %s: %w", name, err)
		}
		high, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return Parameter{}, fmt.Errorf("invalid maximum of %s: %w", name, err)
		}
		if low > high {
			return Parameter{}, fmt.Errorf("invalid range of %s: %v > %v", name, low, high)
		}
		return Parameter{Name: name, Type: ParameterType(parts[0]), Min: low, Max: high}, nil
	}

	if len(parts) > 1 {
		return Parameter{}, fmt.Errorf("invalid parameter %q: unknown type %s", definition, parts[0])
	}
	options := lo.Compact(lo.Map(strings.Split(rest, "|"), func(s string, _ int) string { return strings.TrimSpace(s) }))
	return Parameter{Name: name, Type: TypeCategorical, Options: options}, nil
}

// ParameterSet holds one value per parameter
type ParameterSet map[string]any

// String formats the set with sorted names
func (p ParameterSet) String() string {
	names := lo.Keys(p)
	slices.Sort(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, fmt.Sprintf("%s=%v", name, p[name]))
	}
	return strings.Join(pairs, " ")
}

// MetricName identifies a replay performance metric
type MetricName string

const (
	MetricProfit       MetricName = "profit"
	MetricWinRate      MetricName = "win_rate"
	MetricPayoff       MetricName = "payoff"
	MetricProfitFactor MetricName = "profit_factor"
	MetricSQN          MetricName = "sqn"
	MetricDrawdown     MetricName = "drawdown"
	MetricTradeCount   MetricName = "trade_count"
	MetricFinalBalance MetricName = "final_balance"
)

var metrics = []MetricName{
	MetricProfit, MetricWinRate, MetricPayoff, MetricProfitFactor,
	MetricSQN, MetricDrawdown, MetricTradeCount, MetricFinalBalance,
}

// ParseMetric validates a metric name
func ParseMetric(name string) (MetricName, error) {
	metric := MetricName(strings.ToLower(name))
	if !slices.Contains(metrics, metric) {
		return "", fmt.Errorf("unknown metric %q", name)
	}
	return metric, nil
}

// Result is the outcome of evaluating one parameter set
type Result struct {
	Parameters ParameterSet
	Metrics    map[MetricName]float64
	Duration   time.Duration
}

// Evaluator scores a parameter set
type Evaluator interface {
	Evaluate(ctx context.Context, params ParameterSet) (*Result, error)
}

// Config holds configuration for the optimization process
type Config struct {
	Parameters  []Parameter
	Iterations  int
	Parallelism int
	// Seed makes the sampled parameter sets reproducible; zero seeds from the clock
	Seed     int64
	Target   MetricName
	Maximize bool
	Logger   logger.Logger
}

// NewConfig creates a default configuration
func NewConfig() *Config {
	return &Config{
		Iterations:  50,
		Parallelism: 1,
		Target:      MetricProfit,
		Maximize:    true,
		Logger:      logger.Nop(),
	}
}

// WithParameters sets the search space
func (c *Config) WithParameters(params ...Parameter) *Config {
	c.Parameters = append(c.Parameters, params...)
	return c
}

// WithIterations sets how many sets are sampled
func (c *Config) WithIterations(iterations int) *Config {
	c.Iterations = iterations
	return c
}

// WithParallelism bounds concurrent evaluations
func (c *Config) WithParallelism(n int) *Config {
	c.Parallelism = n
	return c
}

// WithSeed makes sampling reproducible
func (c *Config) WithSeed(seed int64) *Config {
	c.Seed = seed
	return c
}

// WithLogger sets the search logger
func (c *Config) WithLogger(log logger.Logger) *Config {
	c.Logger = log
	return c
}

// WithTarget sets the metric to optimize and its direction
func (c *Config) WithTarget(metric MetricName, maximize bool) *Config {
	c.Target = metric
	c.Maximize = maximize
	return c
}

// sortResults orders results best first; ties keep their sampling order
func sortResults(results []*Result, metric MetricName, maximize bool) {
	slices.SortStableFunc(results, func(a, b *Result) int {
		if maximize {
			return cmp.Compare(b.Metrics[metric], a.Metrics[metric])
		}
		return cmp.Compare(a.Metrics[metric], b.Metrics[metric])
	})
}
