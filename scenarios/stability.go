package scenarios

import (
	"context"
	"time"

	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/stats"
)

// Stability runs back-to-back inferences on one session and passes only if none fail.
// It validates the driver fix for random inference failures.
type Stability struct {
	Iterations int
}

type StabilityResult struct {
	Model      string        `json:"model"`
	Backend    string        `json:"backend"`
	Iterations int           `json:"iterations"`
	Successes  int           `json:"successes"`
	Failures   int           `json:"failures"`
	Elapsed    time.Duration `json:"elapsedNs"`
	Rate       float64       `json:"rate"`
	Passed     bool          `json:"passed"`
}

func (s Stability) Run(ctx context.Context, env Env, model options.ModelConfig) (*StabilityResult, error) {
	env = env.withDefaults()
	session, req, err := env.open(model)
	if err != nil {
		return nil, err
	}
	defer env.close(session)

	result := &StabilityResult{Model: model.Name, Backend: session.Backend(), Iterations: s.Iterations}
	start := env.Clock.Now()
	finish := func() {
		result.Elapsed = env.Clock.Since(start)
		result.Rate = stats.Rate(result.Successes, result.Elapsed)
		result.Passed = result.Failures == 0 && result.Successes+result.Failures == s.Iterations
	}

	for i := range s.Iterations {
		if ctxErr := ctx.Err(); ctxErr != nil {
			finish()
			return result, ctxErr
		}
		if _, runErr := session.Run(req); runErr != nil {
			result.Failures++
			env.Logger.Warn("inference failed", "scenario", options.ScenarioStability, "iteration", i+1, "error", runErr)
			continue
		}
		result.Successes++
	}
	finish()
	return result, nil
}
