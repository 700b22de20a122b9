package scenarios

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/npubench/backends"
	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/stats"
)

func testModel(t testing.TB) options.ModelConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mnist.onnx")
	require.NoError(t, os.WriteFile(path, []byte("onnx"), 0o600))
	return options.ModelConfig{Name: "MNIST INT8", Path: path, InputShape: []int64{1, 1, 28, 28}}
}

func simulatedEnv(config backends.SimulatedConfig) (Env, *backends.SimulatedRuntime) {
	clock := stats.NewManualClock()
	config.Clock = clock
	runtime := backends.NewSimulatedRuntime(config)
	return Env{
		Runtime:  runtime,
		Backends: []string{options.ZhouyiProvider, options.SimulatedProvider},
		Clock:    clock,
		Seed:     1,
	}, runtime
}

func assertNoLeaks(t *testing.T, runtime *backends.SimulatedRuntime) {
	t.Helper()
	counters := runtime.Counters()
	assert.Equal(t, counters.Opens, counters.Closes, "every opened session must be closed")
}

func TestStability(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond})
	result, err := Stability{Iterations: 1000}.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)
	assert.Equal(t, 1000, result.Successes)
	assert.Equal(t, 0, result.Failures)
	assert.True(t, result.Passed)
	assert.Equal(t, time.Second, result.Elapsed)
	assert.Equal(t, 1000.0, result.Rate)
	assert.Equal(t, options.SimulatedProvider, result.Backend)
	assertNoLeaks(t, runtime)
}

func TestStabilityFailures(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond, FailEvery: 10})
	logs := &bytes.Buffer{}
	env.Logger = slog.New(slog.NewTextHandler(logs, nil))

	result, err := Stability{Iterations: 1000}.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)
	assert.Equal(t, 900, result.Successes)
	assert.Equal(t, 100, result.Failures)
	assert.Equal(t, result.Iterations, result.Successes+result.Failures)
	assert.False(t, result.Passed)
	assert.Contains(t, logs.String(), "iteration=10 ")
	assert.Contains(t, logs.String(), "iteration=1000 ")
	assertNoLeaks(t, runtime)
}

func TestStabilityCancelled(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Stability{Iterations: 10}.Run(ctx, env, testModel(t))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Zero(t, result.Successes)
	assert.False(t, result.Passed)
	assertNoLeaks(t, runtime)
}

func TestSetupFailure(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{})
	env.Backends = []string{options.ZhouyiProvider}
	result, err := Stability{Iterations: 10}.Run(context.Background(), env, testModel(t))
	assert.Nil(t, result)
	var unavailable *backends.BackendUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Zero(t, runtime.Counters().Runs)
}

func TestLatency(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: 2 * time.Millisecond})
	result, err := Latency{Warmup: 50, Iterations: 500}.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)
	s := result.Summary
	assert.Equal(t, 500, s.Count)
	assert.Equal(t, 2.0, s.Mean)
	assert.Equal(t, 0.0, s.Std)
	assert.Equal(t, 2.0, s.P50)
	assert.Equal(t, 2.0, s.P95)
	assert.Equal(t, 2.0, s.P99)
	assert.Equal(t, 500.0, s.Throughput)
	assert.Equal(t, 550, runtime.Counters().Runs)
	assertNoLeaks(t, runtime)
}

func TestLatencyWarmupFailures(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond, FailEvery: 10})
	result, err := Latency{Warmup: 50, Iterations: 500}.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)
	assert.Equal(t, 5, result.WarmupFailures)
	assert.Equal(t, 500, result.Summary.Count)
	assert.Equal(t, 50, result.Summary.Failures)
	assertNoLeaks(t, runtime)
}

func TestSustainedLoad(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: 3 * time.Millisecond})
	var delivered []Snapshot
	scenario := SustainedLoad{
		Duration:   100 * time.Millisecond,
		Interval:   30 * time.Millisecond,
		OnSnapshot: func(s Snapshot) { delivered = append(delivered, s) },
	}
	result, err := scenario.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Elapsed, scenario.Duration)
	assert.Less(t, result.Elapsed, scenario.Duration+3*time.Millisecond)
	assert.Equal(t, 34, result.Count)
	assert.Zero(t, result.Errors)
	assert.Equal(t, int64(34*784), result.PixelsProcessed)
	assert.InDelta(t, 34/0.102, result.Throughput, 1e-9)

	require.Len(t, result.Snapshots, 3)
	assert.Equal(t, result.Snapshots, delivered)
	for i, s := range result.Snapshots {
		assert.Equal(t, time.Duration(i+1)*30*time.Millisecond, s.Elapsed)
		assert.Equal(t, (i+1)*10, s.Count)
		assert.InDelta(t, 10/0.03, s.IntervalRate, 1e-9)
	}
	assertNoLeaks(t, runtime)
}

func TestSustainedLoadCancelled(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scenario := SustainedLoad{
		Duration:   time.Minute,
		Interval:   10 * time.Millisecond,
		OnSnapshot: func(Snapshot) { cancel() },
	}
	result, err := scenario.Run(ctx, env, testModel(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, result.Count)
	assert.Less(t, result.Elapsed, scenario.Duration)
	assertNoLeaks(t, runtime)
}

func TestBurst(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: 2 * time.Millisecond})
	result, err := Burst{Sizes: []int{10, 50, 100, 500}, Trials: 5}.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)
	require.Len(t, result.Sizes, 4)
	for _, b := range result.Sizes {
		assert.Equal(t, 5, b.Trials)
		assert.Equal(t, time.Duration(b.Size)*2*time.Millisecond, b.MeanTrial)
		assert.Equal(t, 2*time.Millisecond, b.PerInference)
		assert.InDelta(t, b.MeanTrial, b.PerInference*time.Duration(b.Size), float64(time.Microsecond))
		assert.InDelta(t, 500.0, b.Throughput, 1e-9)
		assert.Zero(t, b.Failures)
	}
	assert.Equal(t, 5*(10+50+100+500), runtime.Counters().Runs)
	assertNoLeaks(t, runtime)
}

func TestBurstFailures(t *testing.T) {
	env, _ := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond, FailEvery: 10})
	result, err := Burst{Sizes: []int{10, 50}, Trials: 2}.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sizes[0].Failures)
	assert.Equal(t, 10, result.Sizes[1].Failures)
}

// cancellingRuntime cancels a context once the wrapped runtime has served a number of calls.
type cancellingRuntime struct {
	*backends.SimulatedRuntime
	cancel context.CancelFunc
	after  int
}

func (r *cancellingRuntime) Open(modelPath string, candidates []string) (backends.Session, error) {
	session, err := r.SimulatedRuntime.Open(modelPath, candidates)
	if err != nil {
		return nil, err
	}
	return &cancellingSession{Session: session, runtime: r}, nil
}

type cancellingSession struct {
	backends.Session
	runtime *cancellingRuntime
}

func (s *cancellingSession) Run(req *backends.Request) ([]backends.Output, error) {
	outputs, err := s.Session.Run(req)
	if s.runtime.Counters().Runs == s.runtime.after {
		s.runtime.cancel()
	}
	return outputs, err
}

func TestBurstCancelledKeepsCompletedTrials(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// all 3 trials of size 10, 2 full trials of size 50, then 5 calls into the third
	env.Runtime = &cancellingRuntime{SimulatedRuntime: runtime, cancel: cancel, after: 3*10 + 2*50 + 5}

	result, err := Burst{Sizes: []int{10, 50, 100}, Trials: 3}.Run(ctx, env, testModel(t))
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, result.Sizes, 2)
	assert.Equal(t, 3, result.Sizes[0].Trials)
	partial := result.Sizes[1]
	assert.Equal(t, 50, partial.Size)
	assert.Equal(t, 2, partial.Trials)
	assert.Equal(t, 50*time.Millisecond, partial.MeanTrial)
	assert.Equal(t, time.Millisecond, partial.PerInference)
	assertNoLeaks(t, runtime)
}

func TestSessionChurn(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond, OpenLatency: 9 * time.Millisecond})
	result, err := SessionChurn{Sessions: 50, InferencesPerSession: 2}.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)
	assert.Equal(t, 50, result.Opened)
	assert.Equal(t, 100, result.TotalInferences)
	assert.Zero(t, result.Failures)
	assert.Zero(t, result.OpenFailures)
	assert.Equal(t, 550*time.Millisecond, result.Elapsed)
	assert.InDelta(t, 50/0.55, result.Rate, 1e-9)

	counters := runtime.Counters()
	assert.Equal(t, 50, counters.Opens)
	assert.Equal(t, 50, counters.Closes)
}

func TestSessionChurnOpenFailures(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{FailOpensAfter: 10, Latency: time.Millisecond})
	result, err := SessionChurn{Sessions: 50, InferencesPerSession: 2}.Run(context.Background(), env, testModel(t))
	require.NoError(t, err)
	assert.Equal(t, 10, result.Opened)
	assert.Equal(t, 40, result.OpenFailures)
	assert.Equal(t, 20, result.TotalInferences)
	assertNoLeaks(t, runtime)
}

func TestSessionChurnCancelled(t *testing.T) {
	env, runtime := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := SessionChurn{Sessions: 5, InferencesPerSession: 2}.Run(ctx, env, testModel(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Opened)
	assert.Zero(t, result.TotalInferences)
	assertNoLeaks(t, runtime)
}

func BenchmarkLatency(b *testing.B) {
	env, _ := simulatedEnv(backends.SimulatedConfig{Latency: time.Millisecond})
	model := testModel(b)
	scenario := Latency{Warmup: 10, Iterations: 1000}
	b.ResetTimer()
	for range b.N {
		if _, err := scenario.Run(context.Background(), env, model); err != nil {
			b.Fatal(err)
		}
	}
}
