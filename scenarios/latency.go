package scenarios

import (
	"context"

	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/stats"
)

// Latency measures the per-call latency distribution after a discarded warmup.
type Latency struct {
	Warmup     int
	Iterations int
}

type LatencyResult struct {
	Model          string        `json:"model"`
	Backend        string        `json:"backend"`
	Warmup         int           `json:"warmup"`
	WarmupFailures int           `json:"warmupFailures"`
	Iterations     int           `json:"iterations"`
	Summary        stats.Summary `json:"summary"`
}

func (l Latency) Run(ctx context.Context, env Env, model options.ModelConfig) (*LatencyResult, error) {
	env = env.withDefaults()
	session, req, err := env.open(model)
	if err != nil {
		return nil, err
	}
	defer env.close(session)

	result := &LatencyResult{Model: model.Name, Backend: session.Backend(), Warmup: l.Warmup, Iterations: l.Iterations}
	for i := range l.Warmup {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		if _, runErr := session.Run(req); runErr != nil {
			result.WarmupFailures++
			env.Logger.Warn("warmup inference failed", "scenario", options.ScenarioLatency, "model", model.Name, "iteration", i+1, "error", runErr)
		}
	}

	collector := stats.NewCollector(l.Iterations)
	for i := range l.Iterations {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Summary = collector.Summarize()
			return result, ctxErr
		}
		start := env.Clock.Now()
		_, runErr := session.Run(req)
		collector.Record(env.Clock.Since(start), runErr == nil)
		if runErr != nil {
			env.Logger.Warn("inference failed", "scenario", options.ScenarioLatency, "model", model.Name, "iteration", i+1, "error", runErr)
		}
	}
	result.Summary = collector.Summarize()
	return result, nil
}
