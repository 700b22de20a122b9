package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/phuslu/log"
	"github.com/urfave/cli/v2"

	"github.com/knights-analytics/npubench"
	"github.com/knights-analytics/npubench/options"
	"github.com/knights-analytics/npubench/report"
	"github.com/knights-analytics/npubench/util/fileutil"
)

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "backend",
		Usage:   "Inference runtime: ORT, GO or SIMULATED. Falls back to the run file, then ORT",
		Aliases: []string{"b"},
	},
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path or URL of a YAML run file",
		Aliases: []string{"c"},
	},
	&cli.StringFlag{
		Name:    "onnxruntimeSharedLibrary",
		Usage:   "Path to libonnxruntime.so (ORT backend only)",
		Aliases: []string{"s"},
	},
	&cli.StringSliceFlag{
		Name:    "model",
		Usage:   "Path to an .onnx model with a 1x1x28x28 input. Repeat to benchmark several models; the first is the primary",
		Aliases: []string{"m"},
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn or error",
		Value: "info",
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run the benchmark suite and print the report",
	Description: `Run executes the stability, latency, sustained load, burst and session churn scenarios in order.
				A failing scenario is reported and the suite moves on. Ctrl-C stops the suite and prints the partial report.
				`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "json",
			Usage:   "Also write the results as JSON to this path",
			Aliases: []string{"j"},
		},
		&cli.StringSliceFlag{
			Name:  "skip",
			Usage: "Scenario to skip: stability, latency, sustained, burst or churn",
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "Seed of the random input tensors",
		},
	},
	Action: func(c *cli.Context) (err error) {
		var extra []options.WithOption
		if skip := c.StringSlice("skip"); len(skip) > 0 {
			extra = append(extra, options.WithSkipScenarios(skip...))
		}
		if c.IsSet("seed") {
			extra = append(extra, options.WithSeed(c.Int64("seed")))
		}
		suite, err := newSuite(c, extra...)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, suite.Destroy())
		}()

		results, runErr := suite.Run(c.Context)
		if results == nil {
			return runErr
		}
		if reportErr := report.NewText(c.App.Writer).Write(results); reportErr != nil {
			return errors.Join(runErr, reportErr)
		}
		if jsonPath := c.String("json"); jsonPath != "" {
			if jsonErr := writeJSON(jsonPath, results); jsonErr != nil {
				return errors.Join(runErr, jsonErr)
			}
		}
		return runErr
	},
}

var quickCommand = &cli.Command{
	Name:  "quick",
	Usage: "Open one session on the primary model and run two inferences",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Usage:   "Step log path. Falls back to the run file, then /tmp/npu_test_output.txt",
			Aliases: []string{"o"},
		},
	},
	Action: func(c *cli.Context) (err error) {
		var extra []options.WithOption
		if output := c.String("output"); output != "" {
			extra = append(extra, options.WithQuickLogPath(output))
		}
		suite, err := newSuite(c, extra...)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, suite.Destroy())
		}()

		stepLog, err := fileutil.NewFileWriter(suite.Options().QuickLogPath)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, stepLog.Close())
		}()
		return suite.QuickCheck(c.Context, io.MultiWriter(c.App.Writer, stepLog))
	},
}

var providersCommand = &cli.Command{
	Name:  "providers",
	Usage: "List the execution providers the runtime can load",
	Action: func(c *cli.Context) (err error) {
		suite, err := newSuite(c)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, suite.Destroy())
		}()
		runtime := suite.Runtime()
		fmt.Fprintf(c.App.Writer, "%s %s\n", runtime.Name(), runtime.Version())
		for _, provider := range runtime.AvailableBackends() {
			fmt.Fprintf(c.App.Writer, "  %s\n", provider)
		}
		return nil
	},
}

var downloadCommand = &cli.Command{
	Name:      "download",
	Usage:     "Download ONNX model repositories from huggingface",
	ArgsUsage: "<owner/model> [owner/model...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "modelFolder",
			Usage:   "Folder where to store downloaded models. Falls back to $HOME/npubench/models",
			Aliases: []string{"f"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Huggingface auth token for gated repositories",
			EnvVars: []string{"HF_TOKEN"},
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return errors.New("at least one model name is required")
		}
		modelsDir := c.String("modelFolder")
		if modelsDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			modelsDir = fileutil.PathJoinSafe(homeDir, "npubench", "models")
		}
		if err := fileutil.EnsureDir(modelsDir); err != nil {
			return err
		}
		downloadOptions := npubench.NewDownloadOptions()
		downloadOptions.AuthToken = c.String("token")
		for _, modelName := range c.Args().Slice() {
			modelPath, err := npubench.DownloadModel(modelName, modelsDir, downloadOptions)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, modelPath)
		}
		return nil
	},
}

// newSuite builds a suite from the run file and the global flags. Flags win over the file.
func newSuite(c *cli.Context, extra ...options.WithOption) (*npubench.Suite, error) {
	var opts []options.WithOption
	backend := c.String("backend")
	if configPath := c.String("config"); configPath != "" {
		fileConfig, err := options.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		if backend == "" {
			backend = fileConfig.Backend
		} else {
			fileConfig.Backend = backend
		}
		opts = append(opts, fileConfig.Options()...)
	}
	if backend == "" {
		backend = "ORT"
	}

	if libraryPath := c.String("onnxruntimeSharedLibrary"); libraryPath != "" {
		opts = append(opts, options.WithOnnxLibraryPath(libraryPath))
	}
	if modelPaths := c.StringSlice("model"); len(modelPaths) > 0 {
		opts = append(opts, options.WithModels(modelsFromPaths(modelPaths)...))
	}
	logger, err := newLogger(c.String("log-level"), c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	opts = append(opts, options.WithLogger(logger))
	opts = append(opts, extra...)
	return npubench.NewSuiteForBackend(backend, opts...)
}

// modelsFromPaths names each model by its file name. Names shared by several paths fall back
// to the full path, since results are keyed by name.
func modelsFromPaths(paths []string) []options.ModelConfig {
	counts := map[string]int{}
	for _, modelPath := range paths {
		counts[filepath.Base(modelPath)]++
	}
	models := make([]options.ModelConfig, 0, len(paths))
	for _, modelPath := range paths {
		name := filepath.Base(modelPath)
		if counts[name] > 1 {
			name = modelPath
		}
		models = append(models, options.ModelConfig{
			Name:       name,
			Path:       modelPath,
			InputShape: []int64{1, 1, 28, 28},
		})
	}
	return models
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	logger := &log.Logger{
		Level: log.ParseLevel(level),
		Writer: &log.ConsoleWriter{
			Writer:         w,
			ColorOutput:    report.IsTerminal(w),
			EndWithMessage: true,
		},
	}
	return logger.Slog(), nil
}

func writeJSON(path string, results *npubench.Results) (err error) {
	writer, err := fileutil.NewFileWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, writer.Close())
	}()
	return report.JSON(writer, results)
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "npubench",
		Usage:    "Stability and performance benchmark for NPU inference through onnxruntime",
		Flags:    globalFlags,
		Commands: []*cli.Command{runCommand, quickCommand, providersCommand, downloadCommand},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "npubench: %v\n", err)
		os.Exit(1)
	}
}
