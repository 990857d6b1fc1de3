package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/lightsheet-go/internal/pipeline"
)

// PipelineMetrics contains Prometheus metrics for stack processing pipelines.
type PipelineMetrics struct {
	registry *prometheus.Registry

	stacksInTotal          *prometheus.CounterVec
	stacksOutTotal         *prometheus.CounterVec
	stacksDroppedTotal     *prometheus.CounterVec
	processorErrorsTotal   *prometheus.CounterVec
	processingDurationSecs *prometheus.HistogramVec
	queueLength            *prometheus.GaugeVec
}

var _ pipeline.Metrics = (*PipelineMetrics)(nil)

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.stacksInTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stacks_in_total",
			Help: "Total number of stacks accepted into the pipeline queue",
		},
		[]string{"pipeline"},
	)

	m.stacksOutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stacks_out_total",
			Help: "Total number of stacks published after processing",
		},
		[]string{"pipeline"},
	)

	m.stacksDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stacks_dropped_total",
			Help: "Total number of stacks dropped by the pipeline",
		},
		[]string{"pipeline", "reason"},
	)

	m.processorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_processor_errors_total",
			Help: "Total number of processor failures",
		},
		[]string{"pipeline", "processor"},
	)

	m.processingDurationSecs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_processing_duration_seconds",
			Help:    "Time spent in each processor per stack",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12), // 0.1ms to ~400ms
		},
		[]string{"pipeline", "processor"},
	)

	m.queueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_length",
			Help: "Stacks waiting in the pipeline queue",
		},
		[]string{"pipeline"},
	)
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.stacksInTotal.Describe(ch)
	m.stacksOutTotal.Describe(ch)
	m.stacksDroppedTotal.Describe(ch)
	m.processorErrorsTotal.Describe(ch)
	m.processingDurationSecs.Describe(ch)
	m.queueLength.Describe(ch)
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.stacksInTotal.Collect(ch)
	m.stacksOutTotal.Collect(ch)
	m.stacksDroppedTotal.Collect(ch)
	m.processorErrorsTotal.Collect(ch)
	m.processingDurationSecs.Collect(ch)
	m.queueLength.Collect(ch)
}

// RecordStackIn records a stack accepted into the queue.
func (m *PipelineMetrics) RecordStackIn(pipeline string) {
	m.stacksInTotal.WithLabelValues(pipeline).Inc()
}

// RecordStackOut records a stack published on the output variable.
func (m *PipelineMetrics) RecordStackOut(pipeline string) {
	m.stacksOutTotal.WithLabelValues(pipeline).Inc()
}

// RecordDropped records a dropped stack.
func (m *PipelineMetrics) RecordDropped(pipeline, reason string) {
	m.stacksDroppedTotal.WithLabelValues(pipeline, reason).Inc()
}

// RecordProcessorError records a processor failure.
func (m *PipelineMetrics) RecordProcessorError(pipeline, processor string) {
	m.processorErrorsTotal.WithLabelValues(pipeline, processor).Inc()
}

// RecordProcessing records the time one processor spent on one stack.
func (m *PipelineMetrics) RecordProcessing(pipeline, processor string, d time.Duration) {
	m.processingDurationSecs.WithLabelValues(pipeline, processor).Observe(d.Seconds())
}

// UpdateQueueLength sets the queue length gauge.
func (m *PipelineMetrics) UpdateQueueLength(pipeline string, n int) {
	m.queueLength.WithLabelValues(pipeline).Set(float64(n))
}
