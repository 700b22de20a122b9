package scenarios

import (
	"context"
	"time"

	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/stats"
	"github.com/knights-analytics/npubench/util/safeconv"
)

// SustainedLoad runs inferences continuously until Duration has elapsed, taking a throughput
// snapshot every Interval.
type SustainedLoad struct {
	Duration time.Duration
	Interval time.Duration
	// OnSnapshot is called as each snapshot is taken.
	OnSnapshot func(Snapshot)
}

type Snapshot struct {
	Elapsed      time.Duration `json:"elapsedNs"`
	Count        int           `json:"count"`
	IntervalRate float64       `json:"intervalRate"`
}

type SustainedResult struct {
	Model           string        `json:"model"`
	Backend         string        `json:"backend"`
	Duration        time.Duration `json:"durationNs"`
	Elapsed         time.Duration `json:"elapsedNs"`
	Count           int           `json:"count"`
	Errors          int           `json:"errors"`
	Throughput      float64       `json:"throughput"`
	PixelsProcessed int64         `json:"pixelsProcessed"`
	Snapshots       []Snapshot    `json:"snapshots"`
}

func (s SustainedLoad) Run(ctx context.Context, env Env, model options.ModelConfig) (*SustainedResult, error) {
	env = env.withDefaults()
	session, req, err := env.open(model)
	if err != nil {
		return nil, err
	}
	defer env.close(session)

	result := &SustainedResult{Model: model.Name, Backend: session.Backend(), Duration: s.Duration}
	var perInference int64 = 1
	if len(req.Shape) > 1 {
		perInference = safeconv.ElementCount(req.Shape[1:])
	}
	start := env.Clock.Now()
	lastSnapshot := start
	lastCount := 0
	finish := func() {
		result.Elapsed = env.Clock.Since(start)
		result.Throughput = stats.Rate(result.Count, result.Elapsed)
		result.PixelsProcessed = int64(result.Count) * perInference
	}

	for env.Clock.Since(start) < s.Duration {
		if ctxErr := ctx.Err(); ctxErr != nil {
			finish()
			return result, ctxErr
		}
		if _, runErr := session.Run(req); runErr != nil {
			result.Errors++
			env.Logger.Warn("inference failed", "scenario", options.ScenarioSustained, "call", result.Count+result.Errors, "error", runErr)
		} else {
			result.Count++
		}

		if s.Interval > 0 {
			if sinceSnapshot := env.Clock.Since(lastSnapshot); sinceSnapshot >= s.Interval {
				snapshot := Snapshot{
					Elapsed:      env.Clock.Since(start),
					Count:        result.Count,
					IntervalRate: stats.Rate(result.Count-lastCount, sinceSnapshot),
				}
				result.Snapshots = append(result.Snapshots, snapshot)
				if s.OnSnapshot != nil {
					s.OnSnapshot(snapshot)
				}
				lastSnapshot = env.Clock.Now()
				lastCount = result.Count
			}
		}
	}
	finish()
	return result, nil
}
