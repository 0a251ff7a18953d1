package metric

import (
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Payoff is the average win divided by the absolute average loss
func Payoff(profits []float64) float64 {
	wins, losses := split(profits)
	if len(wins) == 0 || len(losses) == 0 {
		return 0
	}

	avgLoss := math.Abs(stat.Mean(losses, nil))
	if avgLoss == 0 {
		return 0
	}
	return stat.Mean(wins, nil) / avgLoss
}

// ProfitFactor is gross profit divided by absolute gross loss
func ProfitFactor(profits []float64) float64 {
	wins, losses := split(profits)
	grossLoss := math.Abs(lo.Sum(losses))
	if grossLoss == 0 {
		return 0
	}
	return lo.Sum(wins) / grossLoss
}

// SQN is the system quality number: sqrt(n) * mean / stddev
func SQN(profits []float64) float64 {
	n := float64(len(profits))
	if n < 2 {
		return 0
	}

	mean, std := stat.PopMeanStdDev(profits, nil)
	if std == 0 {
		return 0
	}
	return math.Sqrt(n) * mean / std
}

func split(profits []float64) (wins, losses []float64) {
	wins = lo.Filter(profits, func(p float64, _ int) bool { return p > 0 })
	losses = lo.Filter(profits, func(p float64, _ int) bool { return p < 0 })
	return wins, losses
}
