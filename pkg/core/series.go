package core

import (
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

// Series is an ordered sequence of values, oldest first
type Series[T constraints.Ordered] []T

// Values returns the underlying slice of values
func (s Series[T]) Values() []T {
	return s
}

// Length returns the number of values in the series
func (s Series[T]) Length() int {
	return len(s)
}

// Last returns the value at a specified position from the end.
// Position 0 is the last value, 1 is the second-to-last, etc.
func (s Series[T]) Last(position int) T {
	return s[len(s)-1-position]
}

// LastValues returns a slice with the last 'size' values
func (s Series[T]) LastValues(size int) Series[T] {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}

// Highest returns the maximum value of the series
func (s Series[T]) Highest() T {
	var highest T
	for i, v := range s {
		if i == 0 || v > highest {
			highest = v
		}
	}
	return highest
}

// Lowest returns the minimum value of the series
func (s Series[T]) Lowest() T {
	var lowest T
	for i, v := range s {
		if i == 0 || v < lowest {
			lowest = v
		}
	}
	return lowest
}

// Crossover reports whether the series just crossed above ref.
// Both series need at least two values.
func (s Series[T]) Crossover(ref Series[T]) bool {
	return s.Last(0) > ref.Last(0) && s.Last(1) <= ref.Last(1)
}

// Crossunder reports whether the series just crossed below ref
func (s Series[T]) Crossunder(ref Series[T]) bool {
	return s.Last(0) < ref.Last(0) && s.Last(1) >= ref.Last(1)
}

// NumDecPlaces returns the number of decimal places in a float64
func NumDecPlaces(v float64) int64 {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i > -1 {
		return int64(len(s) - i - 1)
	}
	return 0
}
