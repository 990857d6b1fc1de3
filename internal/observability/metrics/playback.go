package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/lightsheet-go/internal/microscope"
)

// PlaybackMetrics contains Prometheus metrics for microscope playback and
// device lifecycle.
type PlaybackMetrics struct {
	registry *prometheus.Registry

	playbacksTotal          *prometheus.CounterVec
	playbackDurationSeconds *prometheus.HistogramVec
	lifecycleTotal          *prometheus.CounterVec
	cameraDropsTotal        *prometheus.CounterVec
}

var _ microscope.Metrics = (*PlaybackMetrics)(nil)

// NewPlaybackMetrics creates and registers playback metrics.
func NewPlaybackMetrics(registry *prometheus.Registry) (*PlaybackMetrics, error) {
	m := &PlaybackMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PlaybackMetrics) initMetrics() {
	m.playbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microscope_playbacks_total",
			Help: "Total number of synchronized queue playbacks by result",
		},
		[]string{"microscope", "status"}, // status: success, failure
	)

	m.playbackDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microscope_playback_duration_seconds",
			Help:    "Time from playback start until every device finished",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12), // 1ms to ~4s
		},
		[]string{"microscope"},
	)

	m.lifecycleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microscope_lifecycle_operations_total",
			Help: "Total number of device lifecycle operations by result",
		},
		[]string{"microscope", "operation", "device", "status"},
	)

	m.cameraDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microscope_camera_stacks_dropped_total",
			Help: "Total number of camera stacks the pipeline did not accept",
		},
		[]string{"microscope", "camera"},
	)
}

// Describe implements the Collector interface
func (m *PlaybackMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.playbacksTotal.Describe(ch)
	m.playbackDurationSeconds.Describe(ch)
	m.lifecycleTotal.Describe(ch)
	m.cameraDropsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *PlaybackMetrics) Collect(ch chan<- prometheus.Metric) {
	m.playbacksTotal.Collect(ch)
	m.playbackDurationSeconds.Collect(ch)
	m.lifecycleTotal.Collect(ch)
	m.cameraDropsTotal.Collect(ch)
}

// RecordPlayback records one PlayQueueAndWait.
func (m *PlaybackMetrics) RecordPlayback(microscope string, success bool, d time.Duration) {
	m.playbacksTotal.WithLabelValues(microscope, status(success)).Inc()
	m.playbackDurationSeconds.WithLabelValues(microscope).Observe(d.Seconds())
}

// RecordLifecycle records one device open, close, start or stop.
func (m *PlaybackMetrics) RecordLifecycle(microscope, operation, device string, success bool) {
	m.lifecycleTotal.WithLabelValues(microscope, operation, device, status(success)).Inc()
}

// RecordCameraDrop records a camera stack released because the pipeline was full.
func (m *PlaybackMetrics) RecordCameraDrop(microscope, camera string) {
	m.cameraDropsTotal.WithLabelValues(microscope, camera).Inc()
}
