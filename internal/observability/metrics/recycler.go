// Package metrics provides the Prometheus collectors of the acquisition core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/lightsheet-go/internal/recycler"
)

// RecyclerMetrics contains Prometheus metrics for stack recyclers.
type RecyclerMetrics struct {
	registry *prometheus.Registry

	getsTotal            *prometheus.CounterVec
	getWaitSeconds       *prometheus.HistogramVec
	evictionsTotal       *prometheus.CounterVec
	liveObjects          *prometheus.GaugeVec
	availableObjects     *prometheus.GaugeVec
	liveMemoryBytes      *prometheus.GaugeVec
	availableMemoryBytes *prometheus.GaugeVec
}

var _ recycler.Metrics = (*RecyclerMetrics)(nil)

// NewRecyclerMetrics creates and registers recycler metrics.
func NewRecyclerMetrics(registry *prometheus.Registry) (*RecyclerMetrics, error) {
	m := &RecyclerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RecyclerMetrics) initMetrics() {
	m.getsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recycler_gets_total",
			Help: "Total number of stack requests by outcome",
		},
		[]string{"recycler", "outcome"}, // outcome: hit, miss, timeout
	)

	m.getWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recycler_get_wait_seconds",
			Help:    "Time spent obtaining a stack",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12), // 0.1ms to ~400ms
		},
		[]string{"recycler", "outcome"},
	)

	m.evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recycler_evictions_total",
			Help: "Total number of released stacks freed because the available pool was full",
		},
		[]string{"recycler"},
	)

	m.liveObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recycler_live_objects",
			Help: "Stacks currently checked out",
		},
		[]string{"recycler"},
	)

	m.availableObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recycler_available_objects",
			Help: "Released stacks ready for reuse",
		},
		[]string{"recycler"},
	)

	m.liveMemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recycler_live_memory_bytes",
			Help: "Capacity of checked out stacks in bytes",
		},
		[]string{"recycler"},
	)

	m.availableMemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recycler_available_memory_bytes",
			Help: "Capacity of available stacks in bytes",
		},
		[]string{"recycler"},
	)
}

// Describe implements the Collector interface
func (m *RecyclerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.getsTotal.Describe(ch)
	m.getWaitSeconds.Describe(ch)
	m.evictionsTotal.Describe(ch)
	m.liveObjects.Describe(ch)
	m.availableObjects.Describe(ch)
	m.liveMemoryBytes.Describe(ch)
	m.availableMemoryBytes.Describe(ch)
}

// Collect implements the Collector interface
func (m *RecyclerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.getsTotal.Collect(ch)
	m.getWaitSeconds.Collect(ch)
	m.evictionsTotal.Collect(ch)
	m.liveObjects.Collect(ch)
	m.availableObjects.Collect(ch)
	m.liveMemoryBytes.Collect(ch)
	m.availableMemoryBytes.Collect(ch)
}

// RecordGet records one GetOrWait call.
func (m *RecyclerMetrics) RecordGet(recycler, outcome string, wait time.Duration) {
	m.getsTotal.WithLabelValues(recycler, outcome).Inc()
	m.getWaitSeconds.WithLabelValues(recycler, outcome).Observe(wait.Seconds())
}

// RecordEviction records a stack freed on release.
func (m *RecyclerMetrics) RecordEviction(recycler string) {
	m.evictionsTotal.WithLabelValues(recycler).Inc()
}

// UpdatePool sets the pool gauges.
func (m *RecyclerMetrics) UpdatePool(recycler string, live, available int, liveBytes, availableBytes int64) {
	m.liveObjects.WithLabelValues(recycler).Set(float64(live))
	m.availableObjects.WithLabelValues(recycler).Set(float64(available))
	m.liveMemoryBytes.WithLabelValues(recycler).Set(float64(liveBytes))
	m.availableMemoryBytes.WithLabelValues(recycler).Set(float64(availableBytes))
}
