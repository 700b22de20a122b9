package stats

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/knights-analytics/npubench/util/safeconv"
)

// Sample is one timed call.
type Sample struct {
	Duration time.Duration
	OK       bool
}

// Summary holds the descriptive statistics of one scenario's samples. Durations are in
// milliseconds and only successful samples contribute to them.
type Summary struct {
	Count      int     `json:"count"`
	Failures   int     `json:"failures"`
	Mean       float64 `json:"meanMs"`
	Std        float64 `json:"stdMs"`
	Min        float64 `json:"minMs"`
	Max        float64 `json:"maxMs"`
	P50        float64 `json:"p50Ms"`
	P95        float64 `json:"p95Ms"`
	P99        float64 `json:"p99Ms"`
	Throughput float64 `json:"throughput"`
}

// Collector records the samples of a single scenario run.
type Collector struct {
	samples []Sample
}

func NewCollector(capacity int) *Collector {
	return &Collector{samples: make([]Sample, 0, max(capacity, 0))}
}

func (c *Collector) Record(d time.Duration, ok bool) {
	c.samples = append(c.samples, Sample{Duration: d, OK: ok})
}

func (c *Collector) Len() int {
	return len(c.samples)
}

// Samples returns a copy of the recorded samples.
func (c *Collector) Samples() []Sample {
	return slices.Clone(c.samples)
}

func (c *Collector) Summarize() Summary {
	return Summarize(c.samples)
}

// Summarize computes the statistics of samples. Standard deviation is the population one,
// percentiles interpolate linearly at rank p/100*(n-1) of the sorted durations and
// throughput is 1000/mean calls per second.
func Summarize(samples []Sample) Summary {
	summary := Summary{Count: len(samples)}
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !s.OK {
			summary.Failures++
			continue
		}
		values = append(values, safeconv.DurationToMillis(s.Duration))
	}
	if len(values) == 0 {
		return summary
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	summary.Mean = mean
	summary.Std = math.Sqrt(variance)
	summary.Min = floats.Min(values)
	summary.Max = floats.Max(values)

	slices.Sort(values)
	summary.P50 = Percentile(values, 50)
	summary.P95 = Percentile(values, 95)
	summary.P99 = Percentile(values, 99)
	if mean > 0 {
		summary.Throughput = 1000 / mean
	}
	return summary
}

// Percentile returns the p-th percentile of sorted, interpolating linearly between the two
// closest ranks. sorted must be ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	fraction := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*fraction
}

// Rate returns count per second over elapsed, or 0 when nothing has elapsed.
func Rate(count int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed.Seconds()
}
