package safeconv

import (
	"math"
	"time"
)

// Int64SliceToIntSlice converts a slice of int64 to int with clamping into [MinInt, MaxInt].
func Int64SliceToIntSlice(input []int64) []int {
	out := make([]int, len(input))
	for i, v := range input {
		switch {
		case v > math.MaxInt:
			out[i] = math.MaxInt
		case v < math.MinInt:
			out[i] = math.MinInt
		default:
			out[i] = int(v)
		}
	}
	return out
}

// ElementCount multiplies the dimensions of a shape. Dynamic (negative) dimensions count as 1.
func ElementCount(dims []int64) int64 {
	count := int64(1)
	for _, d := range dims {
		if d > 0 {
			count *= d
		}
	}
	return count
}

// DurationToMillis converts a duration to fractional milliseconds.
func DurationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
