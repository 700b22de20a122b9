package options

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/knights-analytics/npubench/util/fileutil"
)

// FileConfig is the YAML run file. Every field is optional; unset fields keep their defaults.
type FileConfig struct {
	Backend              string                       `yaml:"backend"`
	LibraryDir           string                       `yaml:"library_dir"`
	OperatorDir          string                       `yaml:"operator_dir"`
	CacheDir             string                       `yaml:"cache_dir"`
	GraphCacheDir        string                       `yaml:"graph_cache_dir"`
	IntermediateCacheDir string                       `yaml:"intermediate_cache_dir"`
	Providers            []string                     `yaml:"providers"`
	ProviderOptions      map[string]map[string]string `yaml:"provider_options"`
	Models               []ModelConfig                `yaml:"models"`
	Seed                 *int64                       `yaml:"seed"`
	QuickLog             string                       `yaml:"quick_log"`
	ORT                  FileORTConfig                `yaml:"ort"`
	Scenarios            FileScenarioConfig           `yaml:"scenarios"`
}

type FileORTConfig struct {
	LibraryPath       string `yaml:"library_path"`
	Telemetry         bool   `yaml:"telemetry"`
	IntraOpNumThreads *int   `yaml:"intra_op_threads"`
	InterOpNumThreads *int   `yaml:"inter_op_threads"`
	CPUMemArena       *bool  `yaml:"cpu_mem_arena"`
	MemPattern        *bool  `yaml:"mem_pattern"`
}

type FileScenarioConfig struct {
	Skip      []string `yaml:"skip"`
	Stability struct {
		Iterations int `yaml:"iterations"`
	} `yaml:"stability"`
	Latency struct {
		Warmup     *int `yaml:"warmup"`
		Iterations int  `yaml:"iterations"`
	} `yaml:"latency"`
	Sustained struct {
		Duration time.Duration `yaml:"duration"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"sustained"`
	Burst struct {
		Sizes  []int `yaml:"sizes"`
		Trials int   `yaml:"trials"`
	} `yaml:"burst"`
	Churn struct {
		Sessions             int  `yaml:"sessions"`
		InferencesPerSession *int `yaml:"inferences_per_session"`
	} `yaml:"churn"`
}

// LoadFile reads a YAML run file from a local path or any URL the filesystem layer supports.
func LoadFile(path string) (*FileConfig, error) {
	raw, err := fileutil.ReadFileBytes(path)
	if err != nil {
		return nil, fmt.Errorf("reading run file %s: %w", path, err)
	}
	return ParseFile(raw)
}

// ParseFile decodes a YAML run file. Unknown keys are rejected.
func ParseFile(raw []byte) (*FileConfig, error) {
	config := &FileConfig{}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("decoding run file: %w", err)
	}
	return config, nil
}

// Options translates the file into option functions. ORT specific entries are only emitted
// when the file selects the ORT backend, so the same file can drive a simulated dry run.
func (c *FileConfig) Options() []WithOption {
	var opts []WithOption
	if c.LibraryDir != "" {
		opts = append(opts, WithLibraryDir(c.LibraryDir))
	}
	if c.OperatorDir != "" {
		opts = append(opts, WithOperatorDir(c.OperatorDir))
	}
	if c.CacheDir != "" {
		opts = append(opts, WithCacheDir(c.CacheDir))
	}
	if c.GraphCacheDir != "" {
		opts = append(opts, WithGraphCacheDir(c.GraphCacheDir))
	}
	if c.IntermediateCacheDir != "" {
		opts = append(opts, WithIntermediateCacheDir(c.IntermediateCacheDir))
	}
	if len(c.Providers) > 0 {
		opts = append(opts, WithProviders(c.Providers...))
	}
	if len(c.Models) > 0 {
		opts = append(opts, WithModels(c.Models...))
	}
	if c.Seed != nil {
		opts = append(opts, WithSeed(*c.Seed))
	}
	if c.QuickLog != "" {
		opts = append(opts, WithQuickLogPath(c.QuickLog))
	}

	s := c.Scenarios
	if len(s.Skip) > 0 {
		opts = append(opts, WithSkipScenarios(s.Skip...))
	}
	if s.Stability.Iterations != 0 {
		opts = append(opts, WithStabilityIterations(s.Stability.Iterations))
	}
	if s.Latency.Iterations != 0 || s.Latency.Warmup != nil {
		opts = append(opts, func(o *Options) error {
			warmup, iterations := o.Scenarios.LatencyWarmup, o.Scenarios.LatencyIterations
			if s.Latency.Warmup != nil {
				warmup = *s.Latency.Warmup
			}
			if s.Latency.Iterations != 0 {
				iterations = s.Latency.Iterations
			}
			return WithLatency(warmup, iterations)(o)
		})
	}
	if s.Sustained.Duration != 0 || s.Sustained.Interval != 0 {
		opts = append(opts, func(o *Options) error {
			duration, interval := o.Scenarios.SustainedDuration, o.Scenarios.SustainedInterval
			if s.Sustained.Duration != 0 {
				duration = s.Sustained.Duration
			}
			if s.Sustained.Interval != 0 {
				interval = s.Sustained.Interval
			}
			return WithSustainedLoad(duration, interval)(o)
		})
	}
	if s.Burst.Trials != 0 || len(s.Burst.Sizes) > 0 {
		opts = append(opts, func(o *Options) error {
			trials, sizes := o.Scenarios.BurstTrials, o.Scenarios.BurstSizes
			if s.Burst.Trials != 0 {
				trials = s.Burst.Trials
			}
			if len(s.Burst.Sizes) > 0 {
				sizes = s.Burst.Sizes
			}
			return WithBurst(trials, sizes...)(o)
		})
	}
	if s.Churn.Sessions != 0 || s.Churn.InferencesPerSession != nil {
		opts = append(opts, func(o *Options) error {
			sessions, perSession := o.Scenarios.ChurnSessions, o.Scenarios.ChurnInferences
			if s.Churn.Sessions != 0 {
				sessions = s.Churn.Sessions
			}
			if s.Churn.InferencesPerSession != nil {
				perSession = *s.Churn.InferencesPerSession
			}
			return WithSessionChurn(sessions, perSession)(o)
		})
	}

	if c.Backend == "ORT" {
		for provider, providerOptions := range c.ProviderOptions {
			opts = append(opts, WithProviderOptions(provider, providerOptions))
		}
		if c.ORT.LibraryPath != "" {
			opts = append(opts, WithOnnxLibraryPath(c.ORT.LibraryPath))
		}
		if c.ORT.Telemetry {
			opts = append(opts, WithTelemetry())
		}
		if c.ORT.IntraOpNumThreads != nil {
			opts = append(opts, WithIntraOpNumThreads(*c.ORT.IntraOpNumThreads))
		}
		if c.ORT.InterOpNumThreads != nil {
			opts = append(opts, WithInterOpNumThreads(*c.ORT.InterOpNumThreads))
		}
		if c.ORT.CPUMemArena != nil {
			opts = append(opts, WithCPUMemArena(*c.ORT.CPUMemArena))
		}
		if c.ORT.MemPattern != nil {
			opts = append(opts, WithMemPattern(*c.ORT.MemPattern))
		}
	}
	return opts
}
