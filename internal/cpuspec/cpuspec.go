// Package cpuspec inspects the host CPU to size the stack processing worker pool.
package cpuspec

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName     string
	PhysicalCores int
	LogicalCores  int
	Available     int // CPUs usable by this process, smaller than LogicalCores in VMs and containers
}

// GetCPUSpec returns the specification of the host CPU
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:     cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		Available:     runtime.NumCPU(),
	}
}

// OptimalWorkerCount returns the recommended number of pipeline workers.
// One core is left for the acquisition loop and device playback goroutines.
func (c CPUSpec) OptimalWorkerCount() int {
	cores := c.PhysicalCores
	if cores <= 0 {
		cores = c.LogicalCores
	}
	if c.Available > 0 && (cores <= 0 || cores > c.Available) {
		cores = c.Available
	}
	if cores > 2 {
		cores--
	}
	return max(cores, 1)
}
