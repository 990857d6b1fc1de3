package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lightsheet-go/internal/recycler"
)

func TestRecyclerMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewRecyclerMetrics(registry)
	require.NoError(t, err)

	m.RecordGet("cameras", recycler.OutcomeHit, time.Millisecond)
	m.RecordGet("cameras", recycler.OutcomeHit, time.Millisecond)
	m.RecordGet("cameras", recycler.OutcomeTimeout, time.Second)
	m.RecordEviction("cameras")
	m.UpdatePool("cameras", 3, 2, 3<<20, 2<<20)

	assert.InDelta(t, 2, testutil.ToFloat64(m.getsTotal.WithLabelValues("cameras", recycler.OutcomeHit)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.getsTotal.WithLabelValues("cameras", recycler.OutcomeTimeout)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.evictionsTotal.WithLabelValues("cameras")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.liveObjects.WithLabelValues("cameras")), 0)
	assert.InDelta(t, 2<<20, testutil.ToFloat64(m.availableMemoryBytes.WithLabelValues("cameras")), 0)

	families, err := registry.Gather()
	require.NoError(t, err)
	wait := findFamily(t, families, "recycler_get_wait_seconds")
	assert.Equal(t, dto.MetricType_HISTOGRAM, wait.GetType())
	var samples uint64
	for _, metric := range wait.GetMetric() {
		samples += metric.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(3), samples)
}

func TestPipelineMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	tests := []struct {
		name   string
		record func()
		metric prometheus.Collector
		want   float64
	}{
		{"stack in", func() { m.RecordStackIn("main") }, m.stacksInTotal.WithLabelValues("main"), 1},
		{"stack out", func() { m.RecordStackOut("main") }, m.stacksOutTotal.WithLabelValues("main"), 1},
		{"dropped", func() { m.RecordDropped("main", "queue_full") }, m.stacksDroppedTotal.WithLabelValues("main", "queue_full"), 1},
		{"processor error", func() { m.RecordProcessorError("main", "mip") }, m.processorErrorsTotal.WithLabelValues("main", "mip"), 1},
		{"queue length", func() { m.UpdateQueueLength("main", 7) }, m.queueLength.WithLabelValues("main"), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.record()
			assert.InDelta(t, tt.want, testutil.ToFloat64(tt.metric), 0)
		})
	}

	m.RecordProcessing("main", "mip", 2*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.processingDurationSecs))
}

func TestPlaybackMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPlaybackMetrics(registry)
	require.NoError(t, err)

	m.RecordPlayback("scope", true, 10*time.Millisecond)
	m.RecordPlayback("scope", false, time.Second)
	m.RecordPlayback("scope", true, 20*time.Millisecond)
	m.RecordLifecycle("scope", "open", "camera0", true)
	m.RecordCameraDrop("scope", "camera1")

	assert.InDelta(t, 2, testutil.ToFloat64(m.playbacksTotal.WithLabelValues("scope", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.playbacksTotal.WithLabelValues("scope", StatusFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.lifecycleTotal.WithLabelValues("scope", "open", "camera0", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cameraDropsTotal.WithLabelValues("scope", "camera1")), 0)

	expected := `
# HELP microscope_camera_stacks_dropped_total Total number of camera stacks the pipeline did not accept
# TYPE microscope_camera_stacks_dropped_total counter
microscope_camera_stacks_dropped_total{camera="camera1",microscope="scope"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "microscope_camera_stacks_dropped_total"))
}

func TestSystemMetricsReadMemoryOnScrape(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewSystemMetrics(registry)
	require.NoError(t, err)
	m.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 1000, Available: 250}, nil
	}

	assert.InDelta(t, 1000, testutil.ToFloat64(m.memoryTotalBytes), 0)
	assert.InDelta(t, 250, testutil.ToFloat64(m.memoryAvailableBytes), 0)
}

// Registering a second collector of the same kind on one registry fails.
func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewPlaybackMetrics(registry)
	require.NoError(t, err)
	_, err = NewPlaybackMetrics(registry)
	require.Error(t, err)
}

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	require.Failf(t, "metric family not found", "name %s", name)
	return nil
}
