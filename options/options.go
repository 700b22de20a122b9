package options

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/knights-analytics/npubench/stats"
	"github.com/knights-analytics/npubench/util/fileutil"
)

// Execution provider names understood by the runtimes.
const (
	ZhouyiProvider    = "ZhouyiExecutionProvider"
	CPUProvider       = "CPUExecutionProvider"
	GoProvider        = "GoExecutionProvider"
	SimulatedProvider = "SimulatedExecutionProvider"
)

// Scenario names, used as result keys and by WithSkipScenarios.
const (
	ScenarioStability = "stability"
	ScenarioLatency   = "latency"
	ScenarioSustained = "sustained"
	ScenarioBurst     = "burst"
	ScenarioChurn     = "churn"
)

type Options struct {
	Backend     string
	Environment *EnvironmentOptions
	ORTOptions  *OrtOptions
	Scenarios   *ScenarioOptions
	Providers   []string
	Models      []ModelConfig
	// QuickLogPath is where the quick check writes its step log.
	QuickLogPath string
	Seed         int64
	Logger       *slog.Logger
	// Clock times every measurement.
	Clock stats.Clock
}

// EnvironmentOptions are the directories consumed by the NPU execution provider.
// The cache directories are created before the first session is opened.
type EnvironmentOptions struct {
	LibraryDir           string
	OperatorDir          string
	GraphCacheDir        string
	IntermediateCacheDir string
}

type OrtOptions struct {
	LibraryPath       *string
	Telemetry         *bool
	IntraOpNumThreads *int
	InterOpNumThreads *int
	CPUMemArena       *bool
	MemPattern        *bool
	ProviderOptions   map[string]map[string]string
}

// ModelConfig is a model artifact together with the shape of the tensor fed to its first input.
type ModelConfig struct {
	Name       string  `yaml:"name" json:"name"`
	Path       string  `yaml:"path" json:"path"`
	InputShape []int64 `yaml:"input_shape" json:"inputShape"`
}

type ScenarioOptions struct {
	StabilityIterations int
	LatencyWarmup       int
	LatencyIterations   int
	SustainedDuration   time.Duration
	SustainedInterval   time.Duration
	BurstSizes          []int
	BurstTrials         int
	ChurnSessions       int
	ChurnInferences     int
	Skip                map[string]bool
}

const (
	defaultLibraryDir = "/usr/share/cix/lib/onnxruntime"
	defaultCacheDir   = "/tmp/zhouyi_cache"
	defaultModelDir   = "/home/orangepi/onnx"
)

func Defaults() *Options {
	libraryPath := fileutil.PathJoinSafe(defaultLibraryDir, "libonnxruntime.so")
	return &Options{
		Environment: &EnvironmentOptions{
			LibraryDir:           defaultLibraryDir,
			OperatorDir:          fileutil.PathJoinSafe(defaultLibraryDir, "operator"),
			GraphCacheDir:        fileutil.PathJoinSafe(defaultCacheDir, "graph"),
			IntermediateCacheDir: fileutil.PathJoinSafe(defaultCacheDir, "intermediate"),
		},
		ORTOptions: &OrtOptions{
			LibraryPath:     &libraryPath,
			ProviderOptions: map[string]map[string]string{},
		},
		Scenarios: &ScenarioOptions{
			StabilityIterations: 1000,
			LatencyWarmup:       50,
			LatencyIterations:   500,
			SustainedDuration:   60 * time.Second,
			SustainedInterval:   10 * time.Second,
			BurstSizes:          []int{10, 50, 100, 500},
			BurstTrials:         5,
			ChurnSessions:       50,
			ChurnInferences:     2,
			Skip:                map[string]bool{},
		},
		Providers: []string{ZhouyiProvider, CPUProvider},
		Models: []ModelConfig{
			{Name: "MNIST INT8", Path: fileutil.PathJoinSafe(defaultModelDir, "mnist-12-int8.onnx"), InputShape: []int64{1, 1, 28, 28}},
			{Name: "MNIST FP32", Path: fileutil.PathJoinSafe(defaultModelDir, "mnist-8.onnx"), InputShape: []int64{1, 1, 28, 28}},
		},
		QuickLogPath: "/tmp/npu_test_output.txt",
		Seed:         time.Now().UnixNano(),
		Logger:       slog.New(slog.DiscardHandler),
		Clock:        stats.NewRealClock(),
	}
}

// Apply builds Options for backend from the defaults and the given option functions, in order.
func Apply(backend string, opts ...WithOption) (*Options, error) {
	parsed := Defaults()
	parsed.Backend = backend
	for _, option := range opts {
		if option == nil {
			continue
		}
		if err := option(parsed); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

// WithOption is the interface for all option functions.
type WithOption func(o *Options) error

// WithLibraryDir sets the directory of the NPU runtime libraries (exported as AIPULIB_PATH).
// The operator directory follows it unless set explicitly afterwards.
func WithLibraryDir(dir string) WithOption {
	return func(o *Options) error {
		if dir == "" {
			return errors.New("library directory cannot be empty")
		}
		o.Environment.LibraryDir = dir
		o.Environment.OperatorDir = fileutil.PathJoinSafe(dir, "operator")
		return nil
	}
}

// WithOperatorDir sets the NPU operator library directory (exported as OPERATOR_PATH).
func WithOperatorDir(dir string) WithOption {
	return func(o *Options) error {
		if dir == "" {
			return errors.New("operator directory cannot be empty")
		}
		o.Environment.OperatorDir = dir
		return nil
	}
}

// WithCacheDir places the graph and intermediate compilation caches under root.
func WithCacheDir(root string) WithOption {
	return func(o *Options) error {
		if root == "" {
			return errors.New("cache directory cannot be empty")
		}
		o.Environment.GraphCacheDir = fileutil.PathJoinSafe(root, "graph")
		o.Environment.IntermediateCacheDir = fileutil.PathJoinSafe(root, "intermediate")
		return nil
	}
}

// WithGraphCacheDir sets the compiled graph cache directory (exported as GRAPH_PATH).
func WithGraphCacheDir(dir string) WithOption {
	return func(o *Options) error {
		if dir == "" {
			return errors.New("graph cache directory cannot be empty")
		}
		o.Environment.GraphCacheDir = dir
		return nil
	}
}

// WithIntermediateCacheDir sets the intermediate compilation cache directory (exported as INTERMIDIATE_PATH).
func WithIntermediateCacheDir(dir string) WithOption {
	return func(o *Options) error {
		if dir == "" {
			return errors.New("intermediate cache directory cannot be empty")
		}
		o.Environment.IntermediateCacheDir = dir
		return nil
	}
}

// WithProviders sets the execution providers in priority order. A session is bound to the
// first provider that accepts the model.
func WithProviders(providers ...string) WithOption {
	return func(o *Options) error {
		if len(providers) == 0 {
			return errors.New("at least one execution provider is required")
		}
		o.Providers = append([]string(nil), providers...)
		return nil
	}
}

// WithModels replaces the model list. The first model that exists on disk is the primary model
// used by every scenario except latency, which runs on all of them.
func WithModels(models ...ModelConfig) WithOption {
	return func(o *Options) error {
		if len(models) == 0 {
			return errors.New("at least one model is required")
		}
		names := map[string]bool{}
		for _, m := range models {
			if names[m.Name] {
				return fmt.Errorf("model name %q is used twice, results are keyed by name", m.Name)
			}
			names[m.Name] = true
			if m.Path == "" {
				return fmt.Errorf("model %q has no path", m.Name)
			}
			if len(m.InputShape) == 0 {
				return fmt.Errorf("model %q has no input shape", m.Name)
			}
		}
		o.Models = append([]ModelConfig(nil), models...)
		return nil
	}
}

// WithModel replaces the model list with a single model.
func WithModel(path string, name string, inputShape ...int64) WithOption {
	if name == "" {
		name = path
	}
	return WithModels(ModelConfig{Name: name, Path: path, InputShape: inputShape})
}

func WithStabilityIterations(iterations int) WithOption {
	return func(o *Options) error {
		if iterations <= 0 {
			return fmt.Errorf("stability iterations must be positive, got %d", iterations)
		}
		o.Scenarios.StabilityIterations = iterations
		return nil
	}
}

// WithLatency sets the discarded warmup count and the measured iteration count of the latency benchmark.
func WithLatency(warmup int, iterations int) WithOption {
	return func(o *Options) error {
		if warmup < 0 {
			return fmt.Errorf("latency warmup cannot be negative, got %d", warmup)
		}
		if iterations <= 0 {
			return fmt.Errorf("latency iterations must be positive, got %d", iterations)
		}
		o.Scenarios.LatencyWarmup = warmup
		o.Scenarios.LatencyIterations = iterations
		return nil
	}
}

// WithSustainedLoad sets how long the sustained load test runs and how often it reports progress.
func WithSustainedLoad(duration time.Duration, interval time.Duration) WithOption {
	return func(o *Options) error {
		if duration <= 0 {
			return fmt.Errorf("sustained load duration must be positive, got %s", duration)
		}
		if interval <= 0 {
			return fmt.Errorf("sustained load interval must be positive, got %s", interval)
		}
		o.Scenarios.SustainedDuration = duration
		o.Scenarios.SustainedInterval = interval
		return nil
	}
}

// WithBurst sets the burst sizes and the number of trials per size.
func WithBurst(trials int, sizes ...int) WithOption {
	return func(o *Options) error {
		if trials <= 0 {
			return fmt.Errorf("burst trials must be positive, got %d", trials)
		}
		if len(sizes) == 0 {
			return errors.New("at least one burst size is required")
		}
		for _, size := range sizes {
			if size <= 0 {
				return fmt.Errorf("burst sizes must be positive, got %d", size)
			}
		}
		o.Scenarios.BurstTrials = trials
		o.Scenarios.BurstSizes = append([]int(nil), sizes...)
		return nil
	}
}

// WithSessionChurn sets how many sessions are created and destroyed, and how many inferences run on each.
func WithSessionChurn(sessions int, inferencesPerSession int) WithOption {
	return func(o *Options) error {
		if sessions <= 0 {
			return fmt.Errorf("churn sessions must be positive, got %d", sessions)
		}
		if inferencesPerSession < 0 {
			return fmt.Errorf("inferences per session cannot be negative, got %d", inferencesPerSession)
		}
		o.Scenarios.ChurnSessions = sessions
		o.Scenarios.ChurnInferences = inferencesPerSession
		return nil
	}
}

// WithSkipScenarios disables the named scenarios.
func WithSkipScenarios(names ...string) WithOption {
	return func(o *Options) error {
		for _, name := range names {
			switch name {
			case ScenarioStability, ScenarioLatency, ScenarioSustained, ScenarioBurst, ScenarioChurn:
				o.Scenarios.Skip[name] = true
			default:
				return fmt.Errorf("unknown scenario %q", name)
			}
		}
		return nil
	}
}

// WithSeed fixes the seed of the random input tensors.
func WithSeed(seed int64) WithOption {
	return func(o *Options) error {
		o.Seed = seed
		return nil
	}
}

func WithLogger(logger *slog.Logger) WithOption {
	return func(o *Options) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		o.Logger = logger
		return nil
	}
}

// WithClock replaces the clock used to time inferences.
func WithClock(clock stats.Clock) WithOption {
	return func(o *Options) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		o.Clock = clock
		return nil
	}
}

// WithQuickLogPath sets the file the quick check writes to.
func WithQuickLogPath(path string) WithOption {
	return func(o *Options) error {
		if path == "" {
			return errors.New("quick log path cannot be empty")
		}
		o.QuickLogPath = path
		return nil
	}
}

// WithOnnxLibraryPath (ORT only) Use this function to set the path to the "libonnxruntime.so" shared library.
func WithOnnxLibraryPath(ortLibraryPath string) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			exists, err := fileutil.FileExists(ortLibraryPath)
			if err != nil {
				return fmt.Errorf("failed to access ONNX Runtime library path %q: %w", ortLibraryPath, err)
			}
			if !exists {
				return fmt.Errorf("ONNX Runtime library does not exist at %q", ortLibraryPath)
			}
			o.ORTOptions.LibraryPath = &ortLibraryPath
			return nil
		}
		return fmt.Errorf("WithOnnxLibraryPath is only supported for ORT backend")
	}
}

// WithTelemetry (ORT only) Enables telemetry events for the onnxruntime environment. Default is off.
func WithTelemetry() WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			enabled := true
			o.ORTOptions.Telemetry = &enabled
			return nil
		}
		return fmt.Errorf("WithTelemetry is only supported for ORT backend")
	}
}

// WithIntraOpNumThreads (ORT only) Sets the number of threads used to parallelize execution within
// graph nodes. If unspecified, onnxruntime uses the number of physical CPU cores.
func WithIntraOpNumThreads(numThreads int) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.IntraOpNumThreads = &numThreads
			return nil
		}
		return fmt.Errorf("WithIntraOpNumThreads is only supported for ORT backend")
	}
}

// WithInterOpNumThreads (ORT only) Sets the number of threads used to parallelize execution across
// graph nodes. If unspecified, onnxruntime uses the number of physical CPU cores.
func WithInterOpNumThreads(numThreads int) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.InterOpNumThreads = &numThreads
			return nil
		}
		return fmt.Errorf("WithInterOpNumThreads is only supported for ORT backend")
	}
}

// WithCPUMemArena (ORT only) Enable/Disable the usage of the memory arena on CPU.
// Arena may pre-allocate memory for future usage. Default is true.
func WithCPUMemArena(enable bool) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.CPUMemArena = &enable
			return nil
		}
		return fmt.Errorf("WithCPUMemArena is only supported for ORT backend")
	}
}

// WithMemPattern (ORT only) Enable/Disable the memory pattern optimization.
// If this is enabled memory is preallocated if all shapes are known. Default is true.
func WithMemPattern(enable bool) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.MemPattern = &enable
			return nil
		}
		return fmt.Errorf("WithMemPattern is only supported for ORT backend")
	}
}

// WithProviderOptions (ORT only) Sets the key/value options passed to the named execution provider
// when it is appended to a session.
func WithProviderOptions(provider string, providerOptions map[string]string) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.ProviderOptions[provider] = providerOptions
			return nil
		}
		return fmt.Errorf("WithProviderOptions is only supported for ORT backend")
	}
}
