package scenarios

import (
	"context"
	"time"

	"github.com/knights-analytics/npubench/backends"
	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/stats"
)

// SessionChurn repeatedly opens a session, runs a few inferences and closes it, to surface
// resource leaks and re-initialisation failures.
type SessionChurn struct {
	Sessions             int
	InferencesPerSession int
}

type ChurnResult struct {
	Model                string        `json:"model"`
	Backend              string        `json:"backend"`
	Sessions             int           `json:"sessions"`
	Opened               int           `json:"opened"`
	InferencesPerSession int           `json:"inferencesPerSession"`
	TotalInferences      int           `json:"totalInferences"`
	Failures             int           `json:"failures"`
	OpenFailures         int           `json:"openFailures"`
	Elapsed              time.Duration `json:"elapsedNs"`
	Rate                 float64       `json:"rate"`
}

func (c SessionChurn) Run(ctx context.Context, env Env, model options.ModelConfig) (*ChurnResult, error) {
	env = env.withDefaults()
	result := &ChurnResult{Model: model.Name, Sessions: c.Sessions, InferencesPerSession: c.InferencesPerSession}
	start := env.Clock.Now()
	finish := func() {
		result.Elapsed = env.Clock.Since(start)
		result.Rate = stats.Rate(result.Opened, result.Elapsed)
	}

	// the first open is setup and fatal, the request it builds is reused by later sessions
	session, req, err := env.open(model)
	if err != nil {
		return nil, err
	}
	result.Backend = session.Backend()
	if ctxErr := c.cycle(ctx, env, session, req, 1, result); ctxErr != nil {
		finish()
		return result, ctxErr
	}

	for i := 1; i < c.Sessions; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			finish()
			return result, ctxErr
		}
		next, openErr := env.Runtime.Open(model.Path, env.Backends)
		if openErr != nil {
			result.OpenFailures++
			env.Logger.Warn("session open failed", "scenario", options.ScenarioChurn, "session", i+1, "error", openErr)
			continue
		}
		if ctxErr := c.cycle(ctx, env, next, req, i+1, result); ctxErr != nil {
			finish()
			return result, ctxErr
		}
	}
	finish()
	return result, nil
}

// cycle runs the per-session inferences and closes session.
func (c SessionChurn) cycle(ctx context.Context, env Env, session backends.Session, req *backends.Request, index int, result *ChurnResult) error {
	defer env.close(session)
	result.Opened++
	for range c.InferencesPerSession {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		result.TotalInferences++
		if _, runErr := session.Run(req); runErr != nil {
			result.Failures++
			env.Logger.Warn("inference failed", "scenario", options.ScenarioChurn, "session", index, "error", runErr)
		}
	}
	return nil
}
