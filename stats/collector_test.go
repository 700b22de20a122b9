package stats

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantSamples(n int, d time.Duration) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{Duration: d, OK: true}
	}
	return samples
}

func TestSummarizeConstant(t *testing.T) {
	s := Summarize(constantSamples(500, 2*time.Millisecond))
	assert.Equal(t, 500, s.Count)
	assert.Equal(t, 0, s.Failures)
	assert.Equal(t, 2.0, s.Mean)
	assert.Equal(t, 0.0, s.Std)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 2.0, s.Max)
	assert.Equal(t, 2.0, s.P50)
	assert.Equal(t, 2.0, s.P95)
	assert.Equal(t, 2.0, s.P99)
	assert.Equal(t, 500.0, s.Throughput)
}

func TestSummarizeKnownValues(t *testing.T) {
	var samples []Sample
	for _, ms := range []int{5, 1, 4, 2, 3} {
		samples = append(samples, Sample{Duration: time.Duration(ms) * time.Millisecond, OK: true})
	}
	s := Summarize(samples)
	assert.Equal(t, 3.0, s.Mean)
	assert.InDelta(t, 1.4142135623730951, s.Std, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.Equal(t, 3.0, s.P50)
	// rank 0.95*4 = 3.8 -> 4 + 0.8
	assert.InDelta(t, 4.8, s.P95, 1e-12)
	assert.InDelta(t, 4.96, s.P99, 1e-12)
	assert.Equal(t, 1000/s.Mean, s.Throughput)
}

func TestSummarizeExcludesFailures(t *testing.T) {
	samples := []Sample{
		{Duration: 2 * time.Millisecond, OK: true},
		{Duration: 100 * time.Millisecond, OK: false},
		{Duration: 4 * time.Millisecond, OK: true},
	}
	s := Summarize(samples)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, 3.0, s.Mean)
	assert.Equal(t, 4.0, s.Max)
}

func TestSummarizeNoSuccesses(t *testing.T) {
	s := Summarize([]Sample{{Duration: time.Millisecond}})
	assert.Equal(t, Summary{Count: 1, Failures: 1}, s)
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSummaryOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 1; n < 200; n += 7 {
		samples := make([]Sample, n)
		for i := range samples {
			samples[i] = Sample{Duration: time.Duration(r.Int63n(int64(50 * time.Millisecond))), OK: true}
		}
		s := Summarize(samples)
		require.LessOrEqual(t, s.Min, s.P50, "n=%d", n)
		require.LessOrEqual(t, s.P50, s.P95, "n=%d", n)
		require.LessOrEqual(t, s.P95, s.P99, "n=%d", n)
		require.LessOrEqual(t, s.P99, s.Max, "n=%d", n)
		require.Equal(t, 1000/s.Mean, s.Throughput, "n=%d", n)
	}
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 7.0, Percentile([]float64{7}, 99))
	assert.Equal(t, 1.0, Percentile([]float64{1, 2}, 0))
	assert.Equal(t, 2.0, Percentile([]float64{1, 2}, 100))
	assert.Equal(t, 1.5, Percentile([]float64{1, 2}, 50))
}

func TestCollector(t *testing.T) {
	c := NewCollector(2)
	c.Record(time.Millisecond, true)
	c.Record(3*time.Millisecond, true)
	c.Record(time.Second, false)
	assert.Equal(t, 3, c.Len())

	samples := c.Samples()
	samples[0].OK = false
	assert.True(t, c.Samples()[0].OK, "Samples must return a copy")

	s := c.Summarize()
	assert.Equal(t, 2.0, s.Mean)
	assert.Equal(t, 1, s.Failures)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 0.0, Rate(10, 0))
	assert.Equal(t, 5.0, Rate(10, 2*time.Second))
}

func TestManualClock(t *testing.T) {
	c := NewManualClock()
	start := c.Now()
	c.Add(3 * time.Millisecond)
	assert.Equal(t, 3*time.Millisecond, c.Since(start))
	assert.Equal(t, int64(0), start.Unix())
}

func BenchmarkSummarize(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	samples := make([]Sample, 10000)
	for i := range samples {
		samples[i] = Sample{Duration: time.Duration(r.Int63n(int64(10 * time.Millisecond))), OK: true}
	}
	b.ResetTimer()
	for range b.N {
		Summarize(samples)
	}
}
