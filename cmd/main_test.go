package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runFileTemplate = `backend: SIMULATED
cache_dir: %s
models:
  - name: MNIST INT8
    path: %s
    input_shape: [1, 1, 28, 28]
scenarios:
  stability:
    iterations: 20
  latency:
    warmup: 2
    iterations: 10
  sustained:
    duration: 30ms
    interval: 10ms
  burst:
    sizes: [2, 5]
    trials: 2
  churn:
    sessions: 3
    inferences_per_session: 1
`

// writeRunFile writes a small simulated run file and returns its path.
func writeRunFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "mnist-12-int8.onnx")
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0o600))
	config := filepath.Join(dir, "run.yaml")
	content := fmt.Sprintf(runFileTemplate, filepath.Join(dir, "cache"), model)
	require.NoError(t, os.WriteFile(config, []byte(content), 0o600))
	return config
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	app := newApp()
	app.Writer = out
	app.ErrWriter = io.Discard
	err := app.RunContext(context.Background(), append([]string{"npubench"}, args...))
	return out.String(), err
}

func TestRunCli(t *testing.T) {
	config := writeRunFile(t)
	jsonPath := filepath.Join(t.TempDir(), "results.json")

	out, err := runApp(t, "--config", config, "run", "--json", jsonPath, "--seed", "7")
	require.NoError(t, err)
	for _, expected := range []string{
		"TEST 1: STABILITY TEST",
		"TEST 2: LATENCY BENCHMARK",
		"TEST 3: SUSTAINED LOAD TEST",
		"TEST 4: BURST TEST",
		"TEST 5: SESSION RECREATION TEST",
		"BENCHMARK COMPLETE",
	} {
		assert.Contains(t, out, expected)
	}

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, jsoniter.Unmarshal(raw, &decoded))
	stability := decoded["stability"].(map[string]any)
	assert.Equal(t, float64(20), stability["successes"])
}

func TestRunCliSkip(t *testing.T) {
	config := writeRunFile(t)
	out, err := runApp(t, "--config", config, "run", "--skip", "sustained", "--skip", "burst")
	require.NoError(t, err)
	assert.NotContains(t, out, "TEST 3: SUSTAINED LOAD TEST")
	assert.NotContains(t, out, "TEST 4: BURST TEST")
	assert.Contains(t, out, "TEST 5: SESSION RECREATION TEST")
}

func TestRunCliModelFlag(t *testing.T) {
	config := writeRunFile(t)
	missing := filepath.Join(t.TempDir(), "mnist-8.onnx")
	_, err := runApp(t, "--config", config, "--model", missing, "run")
	assert.ErrorContains(t, err, "no test models found")
}

func TestModelsFromPaths(t *testing.T) {
	models := modelsFromPaths([]string{"/a/mnist.onnx", "/b/mnist.onnx", "/b/mnist-8.onnx"})
	require.Len(t, models, 3)
	assert.Equal(t, "/a/mnist.onnx", models[0].Name)
	assert.Equal(t, "/b/mnist.onnx", models[1].Name)
	assert.Equal(t, "mnist-8.onnx", models[2].Name)
	assert.Equal(t, []int64{1, 1, 28, 28}, models[2].InputShape)
}

func TestRunCliSameModelFileName(t *testing.T) {
	config := writeRunFile(t)
	var paths []string
	for range 2 {
		path := filepath.Join(t.TempDir(), "mnist.onnx")
		require.NoError(t, os.WriteFile(path, []byte("onnx"), 0o600))
		paths = append(paths, path)
	}
	jsonPath := filepath.Join(t.TempDir(), "results.json")
	_, err := runApp(t, "--config", config, "--model", paths[0], "--model", paths[1],
		"run", "--skip", "stability", "--skip", "sustained", "--skip", "burst", "--skip", "churn", "--json", jsonPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, jsoniter.Unmarshal(raw, &decoded))
	latency := decoded["latency"].(map[string]any)
	assert.Len(t, latency, 2)
	assert.Contains(t, latency, paths[0])
	assert.Contains(t, latency, paths[1])
}

func TestQuickCli(t *testing.T) {
	config := writeRunFile(t)
	stepLog := filepath.Join(t.TempDir(), "npu_test_output.txt")

	out, err := runApp(t, "--config", config, "quick", "--output", stepLog)
	require.NoError(t, err)
	assert.Contains(t, out, "=== ALL TESTS PASSED ===")

	logged, err := os.ReadFile(stepLog)
	require.NoError(t, err)
	assert.Equal(t, out, string(logged), "the step log mirrors stdout")
}

func TestProvidersCli(t *testing.T) {
	out, err := runApp(t, "--backend", "SIMULATED", "providers")
	require.NoError(t, err)
	assert.Equal(t, "SIMULATED simulated\n  SimulatedExecutionProvider\n  CPUExecutionProvider\n", out)
}

func TestCliErrors(t *testing.T) {
	_, err := runApp(t, "--backend", "TPU", "providers")
	assert.ErrorContains(t, err, "unknown backend")

	_, err = runApp(t, "--backend", "SIMULATED", "--log-level", "loud", "providers")
	assert.ErrorContains(t, err, "unknown log level")

	_, err = runApp(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "run")
	assert.ErrorContains(t, err, "reading run file")

	_, err = runApp(t, "download")
	assert.ErrorContains(t, err, "model name is required")
}
