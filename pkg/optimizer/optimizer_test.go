package optimizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
	"github.com/stretchr/testify/require"
)

// fakeEvaluator scores a set by its "ema" value minus its "sma" value
type fakeEvaluator struct {
	calls atomic.Int32
	fail  string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, params ParameterSet) (*Result, error) {
	f.calls.Add(1)
	if f.fail != "" && params.String() == f.fail {
		return nil, errors.New("boom")
	}

	profit := 0.0
	if ema, ok := params["ema"].(int); ok {
		profit += float64(ema) * 10
	}
	if sma, ok := params["sma"].(int); ok {
		profit -= float64(sma) * 5
	}
	return &Result{
		Parameters: params,
		Metrics:    map[MetricName]float64{MetricProfit: profit, MetricTradeCount: 3},
		Duration:   time.Millisecond,
	}, nil
}

func TestParseParameter(t *testing.T) {
	tests := []struct {
		definition string
		want       Parameter
		err        bool
	}{
		{definition: "period=int:5:30", want: Parameter{Name: "period", Type: TypeInt, Min: 5, Max: 30}},
		{definition: "deviation=float:1.5:3", want: Parameter{Name: "deviation", Type: TypeFloat, Min: 1.5, Max: 3}},
		{definition: "confirm=bool", want: Parameter{Name: "confirm", Type: TypeBool}},
		{definition: "ma_type=ema|sma|wma", want: Parameter{Name: "ma_type", Type: TypeCategorical, Options: []string{"ema", "sma", "wma"}}},
		{definition: "period", err: true},
		{definition: "=int:1:2", err: true},
		{definition: "period=int:5", err: true},
		{definition: "period=int:30:5", err: true},
		{definition: "period=int:a:5", err: true},
		{definition: "period=long:1:5", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.definition, func(t *testing.T) {
			got, err := ParseParameter(tt.definition)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseMetric(t *testing.T) {
	metric, err := ParseMetric("Profit_Factor")
	require.NoError(t, err)
	require.Equal(t, MetricProfitFactor, metric)

	_, err = ParseMetric("sharpe")
	require.Error(t, err)
}

func TestParameterSetString(t *testing.T) {
	require.Equal(t, "a=1 b=ema c=true", ParameterSet{"c": true, "a": 1, "b": "ema"}.String())
}

func TestNewRandomSearchValidation(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil", config: nil},
		{name: "no parameters", config: NewConfig()},
		{name: "no iterations", config: NewConfig().WithParameters(Parameter{Name: "x", Type: TypeBool}).WithIterations(0)},
		{name: "no options", config: NewConfig().WithParameters(Parameter{Name: "x", Type: TypeCategorical})},
		{name: "range", config: NewConfig().WithParameters(Parameter{Name: "x", Type: TypeInt, Min: 3, Max: 1})},
		{name: "metric", config: NewConfig().WithParameters(Parameter{Name: "x", Type: TypeBool}).WithTarget("sharpe", true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRandomSearch(tt.config)
			require.Error(t, err)
		})
	}
}

func searchConfig() *Config {
	return NewConfig().
		WithParameters(
			Parameter{Name: "ema", Type: TypeInt, Min: 5, Max: 30},
			Parameter{Name: "sma", Type: TypeInt, Min: 10, Max: 50},
			Parameter{Name: "deviation", Type: TypeFloat, Min: 1.5, Max: 3},
			Parameter{Name: "ma_type", Type: TypeCategorical, Options: []string{"ema", "sma"}},
		).
		WithIterations(40).
		WithParallelism(4).
		WithSeed(42)
}

func TestRandomSearch(t *testing.T) {
	search, err := NewRandomSearch(searchConfig())
	require.NoError(t, err)

	evaluator := &fakeEvaluator{}
	results, err := search.Optimize(context.Background(), evaluator)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, int32(len(results)), evaluator.calls.Load())

	for i, result := range results {
		ema := result.Parameters["ema"].(int)
		sma := result.Parameters["sma"].(int)
		deviation := result.Parameters["deviation"].(float64)
		require.GreaterOrEqual(t, ema, 5)
		require.LessOrEqual(t, ema, 30)
		require.GreaterOrEqual(t, sma, 10)
		require.LessOrEqual(t, sma, 50)
		require.GreaterOrEqual(t, deviation, 1.5)
		require.LessOrEqual(t, deviation, 3.0)
		require.Contains(t, []string{"ema", "sma"}, result.Parameters["ma_type"])

		if i > 0 {
			require.GreaterOrEqual(t, results[i-1].Metrics[MetricProfit], result.Metrics[MetricProfit])
		}
	}
}

func TestRandomSearchIsReproducible(t *testing.T) {
	sample := func() []string {
		search, err := NewRandomSearch(searchConfig())
		require.NoError(t, err)
		sets := search.generateParameterSets()
		names := make([]string, 0, len(sets))
		for _, set := range sets {
			names = append(names, set.String())
		}
		return names
	}

	require.Equal(t, sample(), sample())
}

func TestRandomSearchMinimizeAndDedupe(t *testing.T) {
	search, err := NewRandomSearch(NewConfig().
		WithParameters(Parameter{Name: "ema", Type: TypeInt, Min: 1, Max: 2}).
		WithIterations(20).
		WithSeed(7).
		WithTarget(MetricProfit, false))
	require.NoError(t, err)

	results, err := search.Optimize(context.Background(), &fakeEvaluator{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, results[0].Parameters["ema"])
	require.Equal(t, 2, results[1].Parameters["ema"])
}

func TestRandomSearchStopsOnError(t *testing.T) {
	search, err := NewRandomSearch(NewConfig().
		WithParameters(Parameter{Name: "flag", Type: TypeBool}).
		WithIterations(10).
		WithSeed(3))
	require.NoError(t, err)

	_, err = search.Optimize(context.Background(), &fakeEvaluator{fail: "flag=true"})
	require.ErrorContains(t, err, "flag=true")

	_, err = search.Optimize(context.Background(), nil)
	require.Error(t, err)
}

func TestReports(t *testing.T) {
	results := []*Result{
		{Parameters: ParameterSet{"ema": 9}, Metrics: map[MetricName]float64{MetricProfit: 12.5, MetricTradeCount: 4, MetricWinRate: 0.5}},
		{Parameters: ParameterSet{"ema": 21, "sma": 50}, Metrics: map[MetricName]float64{MetricProfit: -3}},
	}

	buffer := bytes.NewBuffer(nil)
	PrintResults(buffer, results, MetricProfit, 1)
	require.Contains(t, buffer.String(), "ema=9")
	require.Contains(t, buffer.String(), "12.5000")
	require.NotContains(t, buffer.String(), "ema=21")

	file := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, SaveResultsToCSV(results, file))
	content, err := os.ReadFile(file)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "rank,duration,ema,sma,profit,"))
	require.True(t, strings.HasPrefix(lines[1], "1,0s,9,,12.5000,"))
	require.True(t, strings.HasPrefix(lines[2], "2,0s,21,50,-3.0000,"))

	empty := bytes.NewBuffer(nil)
	PrintResults(empty, nil, MetricProfit, 5)
	require.Equal(t, "No results to display\n", empty.String())
}

// firstBar signals one BUY on the first evaluation when its "fire" option is set
type firstBar struct {
	enabled bool
	fired   bool
}

func (f *firstBar) Name() string                  { return "first_bar" }
func (f *firstBar) Granularity() core.Granularity { return core.GranularityTick }
func (f *firstBar) WarmupPeriod() int             { return 1 }
func (f *firstBar) Evaluate(_ context.Context, w core.Window) *core.Signal {
	if !f.enabled || f.fired || w.Len() == 0 {
		return nil
	}
	f.fired = true
	return core.NewSignal(core.SideBuy, w.Last().Price(), 0.9, "first bar")
}

func firstBarRegistry() *strategy.Registry {
	registry := strategy.NewRegistry()
	registry.Register(strategy.Entry{
		ID:          "first_bar",
		Granularity: core.GranularityTick,
		Factory: func(o strategy.Options, _ strategy.Dependencies) (strategy.Strategy, error) {
			return &firstBar{enabled: o.Bool(false, "fire")}, nil
		},
	})
	return registry
}

func TestReplayEvaluator(t *testing.T) {
	start := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "%d,2000,2000,2000,2000,1\n", start.Add(time.Duration(i)*time.Minute).Unix())
	}
	file := filepath.Join(t.TempDir(), "flat.csv")
	require.NoError(t, os.WriteFile(file, []byte(b.String()), 0o600))

	cfg := engine.DefaultConfig()
	cfg.Strategy = "first_bar"
	evaluator := NewReplayEvaluator(file, "ETHUSD", "1m", cfg, WithRegistryFactory(firstBarRegistry))

	search, err := NewRandomSearch(NewConfig().
		WithParameters(Parameter{Name: "fire", Type: TypeBool}).
		WithIterations(16).
		WithParallelism(2).
		WithSeed(11).
		WithTarget(MetricTradeCount, true))
	require.NoError(t, err)

	results, err := search.Optimize(context.Background(), evaluator)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, true, results[0].Parameters["fire"])
	require.Equal(t, 1.0, results[0].Metrics[MetricTradeCount])
	require.Less(t, results[0].Metrics[MetricProfit], 0.0)

	require.Equal(t, false, results[1].Parameters["fire"])
	require.Zero(t, results[1].Metrics[MetricTradeCount])
	require.Equal(t, 10000.0, results[1].Metrics[MetricFinalBalance])
}
