// Package sysinfo collects the system information block printed at the top of a report.
package sysinfo

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/knights-analytics/npubench/backends"
)

// NPU is the accelerator the suite was written for.
const NPU = "CIX Zhouyi V3 AIPU (3 cores, 4 TECs/core)"

type Info struct {
	CPU            string   `json:"cpu,omitempty"`
	MemoryMB       int64    `json:"memoryMb,omitempty"`
	Kernel         string   `json:"kernel,omitempty"`
	NPU            string   `json:"npu"`
	Runtime        string   `json:"runtime"`
	RuntimeVersion string   `json:"runtimeVersion"`
	Providers      []string `json:"providers"`
}

// Collect gathers what it can. Fields the host does not expose are left empty.
func Collect(ctx context.Context, runtime backends.Runtime) Info {
	info := Info{
		NPU:            NPU,
		Runtime:        runtime.Name(),
		RuntimeVersion: runtime.Version(),
		Providers:      runtime.AvailableBackends(),
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil {
		for _, c := range cpus {
			if model := strings.TrimSpace(c.ModelName); model != "" {
				info.CPU = model
				break
			}
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryMB = int64(vm.Total / (1024 * 1024))
	}
	if kernel, err := host.KernelVersionWithContext(ctx); err == nil {
		info.Kernel = kernel
	}
	return info
}
