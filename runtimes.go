package npubench

import (
	"errors"
	"fmt"
	"time"

	"github.com/knights-analytics/npubench/backends"
	"github.com/knights-analytics/npubench/options"
)

// NewORTSuite creates a suite on onnxruntime. Only one ORT suite can be active at a time.
// Requires a build with the ORT or ALL tag.
func NewORTSuite(opts ...options.WithOption) (*Suite, error) {
	parsed, err := options.Apply("ORT", opts...)
	if err != nil {
		return nil, err
	}
	runtime, err := backends.NewORTRuntime(parsed)
	if err != nil {
		return nil, err
	}
	return &Suite{runtime: runtime, options: parsed}, nil
}

// NewGoSuite creates a suite on the pure Go runtime. It runs on the CPU only and is useful to
// validate models and the harness on machines without the NPU stack.
func NewGoSuite(opts ...options.WithOption) (*Suite, error) {
	parsed, err := options.Apply("GO", append([]options.WithOption{options.WithProviders(options.GoProvider)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Suite{runtime: backends.NewGoRuntime(parsed), options: parsed}, nil
}

// NewSimulatedSuite creates a suite on a simulated runtime, for dry runs of the harness.
func NewSimulatedSuite(config backends.SimulatedConfig, opts ...options.WithOption) (*Suite, error) {
	parsed, err := options.Apply("SIMULATED", append([]options.WithOption{options.WithProviders(options.SimulatedProvider)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = parsed.Clock
	}
	return &Suite{runtime: backends.NewSimulatedRuntime(config), options: parsed}, nil
}

// DefaultSimulatedLatency is the per-call latency of simulated suites created by NewSuiteForBackend.
const DefaultSimulatedLatency = time.Millisecond

// NewSuiteForBackend creates a suite for a backend name: ORT, GO or SIMULATED.
func NewSuiteForBackend(backend string, opts ...options.WithOption) (*Suite, error) {
	switch backend {
	case "ORT":
		return NewORTSuite(opts...)
	case "GO":
		return NewGoSuite(opts...)
	case "SIMULATED":
		return NewSimulatedSuite(backends.SimulatedConfig{Latency: DefaultSimulatedLatency}, opts...)
	case "":
		return nil, errors.New("a backend is required")
	default:
		return nil, fmt.Errorf("unknown backend %q, expected ORT, GO or SIMULATED", backend)
	}
}
