package backends

import (
	"os"

	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/util/fileutil"
)

// Variables read by the Zhouyi execution provider when a session is created. The provider
// has no other configuration channel, so they are exported into the process environment.
const (
	EnvLibraryPath      = "AIPULIB_PATH"
	EnvOperatorPath     = "OPERATOR_PATH"
	EnvGraphPath        = "GRAPH_PATH"
	EnvIntermediatePath = "INTERMIDIATE_PATH"
)

type EnvironmentVariable struct {
	Name  string
	Value string
}

func EnvironmentVariables(env *options.EnvironmentOptions) []EnvironmentVariable {
	return []EnvironmentVariable{
		{EnvLibraryPath, env.LibraryDir},
		{EnvOperatorPath, env.OperatorDir},
		{EnvGraphPath, env.GraphCacheDir},
		{EnvIntermediatePath, env.IntermediateCacheDir},
	}
}

// PrepareEnvironment creates the compilation cache directories if they are missing and exports
// the provider variables. Library directories belong to the vendor install and are passed through as-is.
func PrepareEnvironment(env *options.EnvironmentOptions) error {
	for _, dir := range []string{env.GraphCacheDir, env.IntermediateCacheDir} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return &EnvironmentError{Path: dir, Err: err}
		}
	}
	for _, v := range EnvironmentVariables(env) {
		if v.Value == "" {
			continue
		}
		if err := os.Setenv(v.Name, v.Value); err != nil {
			return &EnvironmentError{Path: v.Value, Err: err}
		}
	}
	return nil
}
