package metric

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// BootstrapInterval is a confidence interval estimated by resampling
type BootstrapInterval struct {
	Lower  float64
	Upper  float64
	StdDev float64
	Mean   float64
}

// Bootstrap estimates a confidence interval for measure over values by
// drawing resamples with replacement. confidence is e.g. 0.95.
func Bootstrap(values []float64, measure func([]float64) float64, resamples int,
	confidence float64) BootstrapInterval {

	if len(values) == 0 || resamples <= 0 {
		return BootstrapInterval{}
	}

	data := make([]float64, resamples)
	for i := range data {
		sample := lo.Times(len(values), func(int) float64 { return lo.Sample(values) })
		data[i] = measure(sample)
	}
	sort.Float64s(data)

	tail := 1 - confidence
	mean, stdDev := stat.MeanStdDev(data, nil)

	return BootstrapInterval{
		Lower:  stat.Quantile(tail/2, stat.LinInterp, data, nil),
		Upper:  stat.Quantile(1-tail/2, stat.LinInterp, data, nil),
		StdDev: stdDev,
		Mean:   mean,
	}
}

// Mean is a measure usable with Bootstrap
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
