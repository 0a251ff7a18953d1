package indicator

import "github.com/markcheno/go-talib"

// MaType represents moving average type
type MaType = talib.MaType

const (
	TypeSMA = talib.SMA // Simple Moving Average
	TypeEMA = talib.EMA // Exponential Moving Average
	TypeWMA = talib.WMA // Weighted Moving Average
)

// The functions below return only warmed-up values: the leading entries
// talib leaves as zero are dropped, so index len-1 is always the newest
// value. A nil result means the input is too short for the period.

// MA calculates a moving average of the given type
func MA(input []float64, period int, maType MaType) []float64 {
	if period < 1 || len(input) < period {
		return nil
	}
	return talib.Ma(input, period, maType)[period-1:]
}

// EMA calculates Exponential Moving Average
func EMA(input []float64, period int) []float64 {
	if period < 1 || len(input) < period {
		return nil
	}
	return talib.Ema(input, period)[period-1:]
}

// SMA calculates Simple Moving Average
func SMA(input []float64, period int) []float64 {
	if period < 1 || len(input) < period {
		return nil
	}
	return talib.Sma(input, period)[period-1:]
}

// RSI calculates Relative Strength Index. Needs more than period values.
func RSI(input []float64, period int) []float64 {
	if period < 2 || len(input) <= period {
		return nil
	}
	return talib.Rsi(input, period)[period:]
}

// BB calculates Bollinger Bands, returning upper, middle and lower bands
func BB(input []float64, period int, deviation float64) (upper, middle, lower []float64) {
	if period < 2 || len(input) < period {
		return nil, nil, nil
	}
	u, m, l := talib.BBands(input, period, deviation, deviation, TypeSMA)
	return u[period-1:], m[period-1:], l[period-1:]
}

// MACD calculates the MACD line, its signal line and the histogram.
// Values are seeded from the first warmed-up slow EMA.
func MACD(input []float64, fastPeriod, slowPeriod, signalPeriod int) (macd, signal, hist []float64) {
	if fastPeriod > slowPeriod {
		fastPeriod, slowPeriod = slowPeriod, fastPeriod
	}
	if fastPeriod < 1 || signalPeriod < 1 || len(input) < slowPeriod+signalPeriod-1 {
		return nil, nil, nil
	}

	fast := talib.Ema(input, fastPeriod)
	slow := talib.Ema(input, slowPeriod)

	line := make([]float64, len(input)-slowPeriod+1)
	for i := range line {
		line[i] = fast[i+slowPeriod-1] - slow[i+slowPeriod-1]
	}

	sig := talib.Ema(line, signalPeriod)
	line = line[signalPeriod-1:]
	sig = sig[signalPeriod-1:]

	hist = make([]float64, len(line))
	for i := range line {
		hist[i] = line[i] - sig[i]
	}

	return line, sig, hist
}

// Stoch calculates the slow stochastic oscillator, returning %K and %D
func Stoch(high, low, close []float64, kPeriod, slowing, dPeriod int) (k, d []float64) {
	lookback := (kPeriod - 1) + (slowing - 1) + (dPeriod - 1)
	if kPeriod < 1 || slowing < 1 || dPeriod < 1 || len(close) <= lookback {
		return nil, nil
	}
	if len(high) != len(close) || len(low) != len(close) {
		return nil, nil
	}

	k, d = talib.Stoch(high, low, close, kPeriod, slowing, TypeSMA, dPeriod, TypeSMA)
	return k[lookback:], d[lookback:]
}

// StdDev calculates the rolling standard deviation
func StdDev(input []float64, period int, deviations float64) []float64 {
	if period < 2 || len(input) < period {
		return nil
	}
	return talib.StdDev(input, period, deviations)[period-1:]
}

// VWAP calculates the volume weighted average price of the newest period
// values. Without volume it degrades to the simple average.
func VWAP(prices, volumes []float64, period int) (float64, bool) {
	if period < 1 || len(prices) == 0 || len(volumes) != len(prices) {
		return 0, false
	}
	if period > len(prices) {
		period = len(prices)
	}

	prices = prices[len(prices)-period:]
	volumes = volumes[len(volumes)-period:]

	var pv, v, sum float64
	for i := range prices {
		pv += prices[i] * volumes[i]
		v += volumes[i]
		sum += prices[i]
	}

	if v <= 0 {
		return sum / float64(len(prices)), true
	}
	return pv / v, true
}

// AdaptPeriod shrinks period so that it fits in available values, never
// going below floor. It returns 0 when even floor does not fit.
func AdaptPeriod(period, available, floor int) int {
	if period > available {
		period = available
	}
	if period < floor {
		if floor > available {
			return 0
		}
		period = floor
	}
	return period
}
