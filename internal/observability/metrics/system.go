package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics exposes system memory, read on every scrape. Stack
// allocation is refused below the configured free memory share, so this
// is the gauge to watch next to the recycler pools.
type SystemMetrics struct {
	registry *prometheus.Registry

	memoryTotalBytes     prometheus.GaugeFunc
	memoryAvailableBytes prometheus.GaugeFunc

	virtualMemory func() (*mem.VirtualMemoryStat, error)
}

// NewSystemMetrics creates and registers system metrics.
func NewSystemMetrics(registry *prometheus.Registry) (*SystemMetrics, error) {
	m := &SystemMetrics{registry: registry, virtualMemory: mem.VirtualMemory}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SystemMetrics) initMetrics() {
	m.memoryTotalBytes = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "system_memory_total_bytes",
		Help: "Total system memory in bytes",
	}, func() float64 {
		vm, err := m.virtualMemory()
		if err != nil {
			return 0
		}
		return float64(vm.Total)
	})

	m.memoryAvailableBytes = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "system_memory_available_bytes",
		Help: "System memory available for new allocations in bytes",
	}, func() float64 {
		vm, err := m.virtualMemory()
		if err != nil {
			return 0
		}
		return float64(vm.Available)
	})
}

// Describe implements the Collector interface
func (m *SystemMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.memoryTotalBytes.Describe(ch)
	m.memoryAvailableBytes.Describe(ch)
}

// Collect implements the Collector interface
func (m *SystemMetrics) Collect(ch chan<- prometheus.Metric) {
	m.memoryTotalBytes.Collect(ch)
	m.memoryAvailableBytes.Collect(ch)
}
