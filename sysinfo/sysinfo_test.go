package sysinfo

import (
	"context"
	"os"
	"path/filepath"
	goruntime "runtime"
	"testing"

	"github.com/shirou/gopsutil/v4/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/npubench/backends"
	"github.com/knights-analytics/npubench/options"
)

const cpuinfo = `processor	: 0
BogoMIPS	: 2000.00
model name	: Cortex-A720
processor	: 1
model name	: Cortex-A520
`

const meminfo = `MemTotal:       16121228 kB
MemFree:         9911420 kB
MemAvailable:   12000000 kB
`

func TestCollect(t *testing.T) {
	if goruntime.GOOS != "linux" {
		t.Skip("proc fixtures are read on linux only")
	}
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cpuinfo"), []byte(cpuinfo), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "meminfo"), []byte(meminfo), 0o600))
	ctx := context.WithValue(context.Background(), common.EnvKey, common.EnvMap{
		common.HostProcEnvKey: root,
		common.HostSysEnvKey:  t.TempDir(),
	})

	runtime := backends.NewSimulatedRuntime(backends.SimulatedConfig{})
	info := Collect(ctx, runtime)
	assert.Equal(t, "Cortex-A720", info.CPU)
	assert.Equal(t, int64(15743), info.MemoryMB)
	assert.NotEmpty(t, info.Kernel)
	assert.Equal(t, NPU, info.NPU)
	assert.Equal(t, "SIMULATED", info.Runtime)
	assert.Equal(t, []string{options.SimulatedProvider, options.CPUProvider}, info.Providers)
}

func TestCollectMissingProc(t *testing.T) {
	if goruntime.GOOS != "linux" {
		t.Skip("proc fixtures are read on linux only")
	}
	ctx := context.WithValue(context.Background(), common.EnvKey, common.EnvMap{
		common.HostProcEnvKey: t.TempDir(),
		common.HostSysEnvKey:  t.TempDir(),
	})
	info := Collect(ctx, backends.NewSimulatedRuntime(backends.SimulatedConfig{}))
	assert.Empty(t, info.CPU, "an unreadable cpuinfo leaves the field empty")
	assert.Zero(t, info.MemoryMB)
	assert.Equal(t, NPU, info.NPU)
}
