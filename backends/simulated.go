package backends

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/stats"
	"github.com/knights-analytics/npubench/util/fileutil"
)

// SimulatedConfig drives the behaviour of a SimulatedRuntime.
type SimulatedConfig struct {
	// Latency is the duration of every Run call.
	Latency time.Duration
	// OpenLatency is the duration of every successful Open.
	OpenLatency time.Duration
	// FailEvery makes every n-th Run call on the runtime fail. Zero disables failures.
	FailEvery int
	// FailOpensAfter makes every Open after the first n fail. Zero disables open failures.
	FailOpensAfter int
	// Backends accepted by Open. Empty accepts SimulatedExecutionProvider and CPUExecutionProvider.
	Backends []string
	// Inputs and Outputs reported by every session. Defaults to a single MNIST shaped pair.
	Inputs  []InputOutputInfo
	Outputs []InputOutputInfo
	// Clock advanced by Latency when it is a *clock.Mock, slept on otherwise.
	Clock stats.Clock
}

// SimulatedCounters are the runtime's lifetime counters.
type SimulatedCounters struct {
	Opens        int
	OpenFailures int
	Closes       int
	Runs         int
	RunFailures  int
}

// SimulatedRuntime is a deterministic runtime with no hardware behind it. Model files must exist
// but are never parsed.
type SimulatedRuntime struct {
	config   SimulatedConfig
	mu       sync.Mutex
	counters SimulatedCounters
	attempts int
}

func NewSimulatedRuntime(config SimulatedConfig) *SimulatedRuntime {
	if config.Clock == nil {
		config.Clock = stats.NewRealClock()
	}
	if len(config.Backends) == 0 {
		config.Backends = []string{options.SimulatedProvider, options.CPUProvider}
	}
	if len(config.Inputs) == 0 {
		config.Inputs = []InputOutputInfo{{Name: "Input3", Dimensions: NewShape(1, 1, 28, 28), DataType: "float32"}}
	}
	if len(config.Outputs) == 0 {
		config.Outputs = []InputOutputInfo{{Name: "Plus214_Output_0", Dimensions: NewShape(1, 10), DataType: "float32"}}
	}
	return &SimulatedRuntime{config: config}
}

func (r *SimulatedRuntime) Name() string {
	return "SIMULATED"
}

func (r *SimulatedRuntime) Version() string {
	return "simulated"
}

func (r *SimulatedRuntime) AvailableBackends() []string {
	return slices.Clone(r.config.Backends)
}

func (r *SimulatedRuntime) Counters() SimulatedCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

func (r *SimulatedRuntime) Open(modelPath string, backends []string) (Session, error) {
	exists, err := fileutil.FileExists(modelPath)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}
	if !exists {
		return nil, &ModelLoadError{Path: modelPath, Err: errors.New("file does not exist")}
	}

	r.mu.Lock()
	r.attempts++
	if r.config.FailOpensAfter > 0 && r.attempts > r.config.FailOpensAfter {
		r.counters.OpenFailures++
		r.mu.Unlock()
		rejections := make([]BackendRejection, len(backends))
		for i, b := range backends {
			rejections[i] = BackendRejection{Backend: b, Err: fmt.Errorf("device busy after %d sessions", r.config.FailOpensAfter)}
		}
		return nil, &BackendUnavailableError{Path: modelPath, Rejections: rejections}
	}
	r.mu.Unlock()

	var rejections []BackendRejection
	for _, b := range backends {
		if !slices.Contains(r.config.Backends, b) {
			rejections = append(rejections, BackendRejection{Backend: b, Err: errors.New("provider not available")})
			continue
		}
		r.wait(r.config.OpenLatency)
		r.mu.Lock()
		r.counters.Opens++
		r.mu.Unlock()
		return &simulatedSession{runtime: r, backend: b, modelPath: modelPath}, nil
	}
	return nil, &BackendUnavailableError{Path: modelPath, Rejections: rejections}
}

func (r *SimulatedRuntime) Destroy() error {
	return nil
}

func (r *SimulatedRuntime) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	if mock, ok := r.config.Clock.(*clock.Mock); ok {
		mock.Add(d)
		return
	}
	r.config.Clock.Sleep(d)
}

type simulatedSession struct {
	runtime   *SimulatedRuntime
	backend   string
	modelPath string
	closed    bool
}

func (s *simulatedSession) Backend() string {
	return s.backend
}

func (s *simulatedSession) ModelPath() string {
	return s.modelPath
}

func (s *simulatedSession) Inputs() []InputOutputInfo {
	return slices.Clone(s.runtime.config.Inputs)
}

func (s *simulatedSession) Outputs() []InputOutputInfo {
	return slices.Clone(s.runtime.config.Outputs)
}

func (s *simulatedSession) Run(req *Request) ([]Output, error) {
	if s.closed {
		return nil, newInferenceError(s.backend, ErrSessionClosed)
	}
	if req == nil {
		return nil, newInferenceError(s.backend, errors.New("nil request"))
	}
	r := s.runtime
	r.wait(r.config.Latency)

	r.mu.Lock()
	r.counters.Runs++
	call := r.counters.Runs
	failed := r.config.FailEvery > 0 && call%r.config.FailEvery == 0
	if failed {
		r.counters.RunFailures++
	}
	r.mu.Unlock()

	if failed {
		return nil, newInferenceError(s.backend, fmt.Errorf("simulated failure on call %d", call))
	}
	outputs := make([]Output, len(r.config.Outputs))
	for i, o := range r.config.Outputs {
		outputs[i] = Output{Name: o.Name, Shape: slices.Clone(o.Dimensions)}
	}
	return outputs, nil
}

func (s *simulatedSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.runtime.mu.Lock()
	s.runtime.counters.Closes++
	s.runtime.mu.Unlock()
	return nil
}
