package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// RandomSearch samples parameter sets uniformly and evaluates them in parallel
type RandomSearch struct {
	parameters  []Parameter
	iterations  int
	parallelism int
	target      MetricName
	maximize    bool
	log         logger.Logger
	rng         *rand.Rand
}

// NewRandomSearch creates a new random search optimizer
func NewRandomSearch(config *Config) (*RandomSearch, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if len(config.Parameters) == 0 {
		return nil, errors.New("at least one parameter must be provided")
	}
	if config.Iterations <= 0 {
		return nil, fmt.Errorf("invalid iterations: %d", config.Iterations)
	}
	for _, param := range config.Parameters {
		if param.Type == TypeCategorical && len(param.Options) == 0 {
			return nil, fmt.Errorf("parameter %s has no options", param.Name)
		}
		if param.Min > param.Max {
			return nil, fmt.Errorf("parameter %s has an empty range", param.Name)
		}
	}
	if _, err := ParseMetric(string(config.Target)); err != nil {
		return nil, err
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &RandomSearch{
		parameters:  config.Parameters,
		iterations:  config.Iterations,
		parallelism: max(1, config.Parallelism),
		target:      config.Target,
		maximize:    config.Maximize,
		log:         log,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Optimize evaluates the sampled parameter sets and returns their results,
// best first. The first evaluation error cancels the search.
func (r *RandomSearch) Optimize(ctx context.Context, evaluator Evaluator) ([]*Result, error) {
	if evaluator == nil {
		return nil, errors.New("evaluator cannot be nil")
	}

	sets := r.generateParameterSets()
	r.log.Infof("Starting random search with %d parameter sets", len(sets))

	results := make([]*Result, len(sets))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.parallelism)

	for i, params := range sets {
		group.Go(func() error {
			result, err := evaluator.Evaluate(ctx, params)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", params, err)
			}
			results[i] = result
			r.log.Debugf("Completed evaluation %d/%d: %s", i+1, len(sets), params)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sortResults(results, r.target, r.maximize)
	r.log.Infof("Random search completed with %d results", len(results))
	return results, nil
}

// generateParameterSets draws the configured number of sets, dropping repeats
func (r *RandomSearch) generateParameterSets() []ParameterSet {
	sets := make([]ParameterSet, 0, r.iterations)
	for i := 0; i < r.iterations; i++ {
		set := make(ParameterSet, len(r.parameters))
		for _, param := range r.parameters {
			set[param.Name] = r.generateValue(param)
		}
		sets = append(sets, set)
	}
	return lo.UniqBy(sets, ParameterSet.String)
}

func (r *RandomSearch) generateValue(param Parameter) any {
	switch param.Type {
	case TypeInt:
		low, high := int(math.Ceil(param.Min)), int(math.Floor(param.Max))
		if low >= high {
			return low
		}
		return low + r.rng.Intn(high-low+1)
	case TypeFloat:
		value := param.Min + r.rng.Float64()*(param.Max-param.Min)
		return math.Round(value*1e4) / 1e4
	case TypeBool:
		return r.rng.Intn(2) == 1
	default:
		return param.Options[r.rng.Intn(len(param.Options))]
	}
}
