package scenarios

import (
	"context"
	"time"

	"github.com/knights-analytics/npubench/options"
)

// Burst times runs of back-to-back inferences of increasing size. Only the elapsed time of
// a whole trial is measured.
type Burst struct {
	Sizes  []int
	Trials int
}

type BurstSize struct {
	Size         int           `json:"size"`
	Trials       int           `json:"trials"`
	MeanTrial    time.Duration `json:"meanTrialNs"`
	PerInference time.Duration `json:"perInferenceNs"`
	Throughput   float64       `json:"throughput"`
	Failures     int           `json:"failures"`
}

type BurstResult struct {
	Model   string      `json:"model"`
	Backend string      `json:"backend"`
	Sizes   []BurstSize `json:"sizes"`
}

func (b Burst) Run(ctx context.Context, env Env, model options.ModelConfig) (*BurstResult, error) {
	env = env.withDefaults()
	session, req, err := env.open(model)
	if err != nil {
		return nil, err
	}
	defer env.close(session)

	result := &BurstResult{Model: model.Name, Backend: session.Backend()}
	for _, size := range b.Sizes {
		burst := BurstSize{Size: size}
		var total time.Duration
		for range b.Trials {
			start := env.Clock.Now()
			for i := range size {
				if ctxErr := ctx.Err(); ctxErr != nil {
					// keep the trials of this size that completed
					if burst.Trials > 0 {
						result.Sizes = append(result.Sizes, burst.summarize(total))
					}
					return result, ctxErr
				}
				if _, runErr := session.Run(req); runErr != nil {
					burst.Failures++
					env.Logger.Warn("inference failed", "scenario", options.ScenarioBurst, "size", size, "call", i+1, "error", runErr)
				}
			}
			total += env.Clock.Since(start)
			burst.Trials++
		}
		result.Sizes = append(result.Sizes, burst.summarize(total))
	}
	return result, nil
}

// summarize fills the timing fields from the total elapsed time of the completed trials.
func (b BurstSize) summarize(total time.Duration) BurstSize {
	if b.Trials > 0 && b.Size > 0 {
		b.MeanTrial = total / time.Duration(b.Trials)
		b.PerInference = b.MeanTrial / time.Duration(b.Size)
		if b.MeanTrial > 0 {
			b.Throughput = float64(b.Size) / b.MeanTrial.Seconds()
		}
	}
	return b
}
