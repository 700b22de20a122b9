package npubench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/knights-analytics/npubench/backends"
	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/scenarios"
	"github.com/knights-analytics/npubench/sysinfo"
	"github.com/knights-analytics/npubench/util/fileutil"
)

// ErrInterrupted is returned by Suite.Run when the context is cancelled. The partial results
// are returned alongside it.
var ErrInterrupted = errors.New("benchmark interrupted")

// ErrNoModels is returned when none of the configured models exist.
var ErrNoModels = errors.New("no test models found")

// Suite runs the benchmark scenarios against one runtime.
type Suite struct {
	runtime backends.Runtime
	options *options.Options
}

// Results holds everything a run produced. Scenarios that did not run are nil.
type Results struct {
	Timestamp   time.Time                           `json:"timestamp"`
	System      sysinfo.Info                        `json:"system"`
	Models      []options.ModelConfig               `json:"models"`
	Stability   *scenarios.StabilityResult          `json:"stability,omitempty"`
	Latency     map[string]*scenarios.LatencyResult `json:"latency,omitempty"`
	Sustained   *scenarios.SustainedResult          `json:"sustained,omitempty"`
	Burst       *scenarios.BurstResult              `json:"burst,omitempty"`
	Churn       *scenarios.ChurnResult              `json:"churn,omitempty"`
	Errors      map[string]string                   `json:"errors,omitempty"`
	Interrupted bool                                `json:"interrupted"`
}

// Primary is the model the single-model scenarios run on.
func (r *Results) Primary() (options.ModelConfig, bool) {
	if len(r.Models) == 0 {
		return options.ModelConfig{}, false
	}
	return r.Models[0], true
}

// NewSuite creates a suite on an existing runtime. The suite takes ownership of the runtime
// and destroys it in Destroy.
func NewSuite(runtime backends.Runtime, opts ...options.WithOption) (*Suite, error) {
	if runtime == nil {
		return nil, errors.New("a runtime is required")
	}
	parsed, err := options.Apply(runtime.Name(), opts...)
	if err != nil {
		return nil, err
	}
	return &Suite{runtime: runtime, options: parsed}, nil
}

func (s *Suite) Runtime() backends.Runtime {
	return s.runtime
}

func (s *Suite) Options() *options.Options {
	return s.options
}

// Destroy releases the runtime.
func (s *Suite) Destroy() error {
	return s.runtime.Destroy()
}

// availableModels filters the configured models down to those present on disk, in order.
func (s *Suite) availableModels() ([]options.ModelConfig, error) {
	var available []options.ModelConfig
	for _, m := range s.options.Models {
		exists, err := fileutil.FileExists(m.Path)
		if err != nil {
			return nil, fmt.Errorf("checking model %s: %w", m.Path, err)
		}
		if !exists {
			s.options.Logger.Warn("model not found, skipping", "model", m.Name, "path", m.Path)
			continue
		}
		available = append(available, m)
	}
	if len(available) == 0 {
		return nil, ErrNoModels
	}
	return available, nil
}

type step struct {
	name string
	run  func() error
}

// Run prepares the environment and runs every enabled scenario in order. A failing scenario
// is recorded in Results.Errors and the suite moves on. Cancelling ctx stops the suite after
// the current call and returns the partial results with ErrInterrupted.
func (s *Suite) Run(ctx context.Context) (*Results, error) {
	logger := s.options.Logger
	if err := backends.PrepareEnvironment(s.options.Environment); err != nil {
		return nil, err
	}
	models, err := s.availableModels()
	if err != nil {
		return nil, err
	}
	results := &Results{
		Timestamp: time.Now(),
		System:    sysinfo.Collect(ctx, s.runtime),
		Models:    models,
		Latency:   map[string]*scenarios.LatencyResult{},
		Errors:    map[string]string{},
	}
	primary := models[0]
	env := scenarios.NewEnv(s.runtime, s.options)
	config := s.options.Scenarios

	steps := []step{
		{options.ScenarioStability, func() error {
			r, runErr := scenarios.Stability{Iterations: config.StabilityIterations}.Run(ctx, env, primary)
			results.Stability = r
			return runErr
		}},
		{options.ScenarioLatency, func() error {
			latency := scenarios.Latency{Warmup: config.LatencyWarmup, Iterations: config.LatencyIterations}
			for _, m := range models {
				r, runErr := latency.Run(ctx, env, m)
				if r != nil {
					results.Latency[m.Name] = r
				}
				if runErr != nil {
					if ctx.Err() != nil {
						return runErr
					}
					s.recordError(results, options.ScenarioLatency+"/"+m.Name, runErr)
				}
			}
			return nil
		}},
		{options.ScenarioSustained, func() error {
			sustained := scenarios.SustainedLoad{
				Duration: config.SustainedDuration,
				Interval: config.SustainedInterval,
				OnSnapshot: func(snapshot scenarios.Snapshot) {
					logger.Info("sustained load progress",
						"elapsed", snapshot.Elapsed.Round(100*time.Millisecond),
						"inferences", snapshot.Count,
						"rate", fmt.Sprintf("%.1f", snapshot.IntervalRate))
				},
			}
			r, runErr := sustained.Run(ctx, env, primary)
			results.Sustained = r
			return runErr
		}},
		{options.ScenarioBurst, func() error {
			r, runErr := scenarios.Burst{Sizes: config.BurstSizes, Trials: config.BurstTrials}.Run(ctx, env, primary)
			results.Burst = r
			return runErr
		}},
		{options.ScenarioChurn, func() error {
			r, runErr := scenarios.SessionChurn{Sessions: config.ChurnSessions, InferencesPerSession: config.ChurnInferences}.Run(ctx, env, primary)
			results.Churn = r
			return runErr
		}},
	}

	for _, st := range steps {
		if config.Skip[st.name] {
			logger.Info("scenario skipped", "scenario", st.name)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		logger.Info("running scenario", "scenario", st.name, "model", primary.Name)
		if runErr := st.run(); runErr != nil {
			if ctx.Err() != nil {
				break
			}
			s.recordError(results, st.name, runErr)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		results.Interrupted = true
		logger.Warn("benchmark interrupted", "error", ctxErr)
		return results, fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
	}
	return results, nil
}

func (s *Suite) recordError(results *Results, key string, err error) {
	results.Errors[key] = err.Error()
	s.options.Logger.Error("scenario failed", "scenario", key, "error", err)
}

// QuickCheck runs the quick smoke test on the suite's runtime.
func (s *Suite) QuickCheck(ctx context.Context, w io.Writer) error {
	return QuickCheck(ctx, s.runtime, s.options, w)
}
