package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.GetTimestamp().IsZero())
}

func TestBuilderSetsFields(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("camera %d failed", 2).
		Component("microscope").
		Category(CategoryDevice).
		Priority(PriorityHigh).
		Context("device", "cam2").
		Build()

	assert.Equal(t, "camera 2 failed", ee.Error())
	assert.Equal(t, "microscope", ee.GetComponent())
	assert.Equal(t, "device", ee.GetCategory())
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	assert.Equal(t, map[string]any{"device": "cam2"}, ee.GetContext())
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	ee := NewStd("x")
	built := New(ee).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, built.GetPriority())
}

func TestWrappedSentinelMatchesWithIs(t *testing.T) {
	SetTelemetryReporter(nil)

	sentinel := New(NewStd("recycler exhausted")).Category(CategoryTimeout).Build()
	wrapped := New(sentinel).Context("recycler", "cam0").Build()

	require.ErrorIs(t, wrapped, sentinel)
	assert.Equal(t, CategoryTimeout, wrapped.Category, "category is inherited from the wrapped error")
	assert.True(t, IsTimeout(wrapped))
	assert.False(t, IsNotFound(wrapped))

	other := New(NewStd("recycler exhausted")).Category(CategoryTimeout).Build()
	assert.NotErrorIs(t, wrapped, other)
}

func TestNilWrappedErrorDoesNotPanic(t *testing.T) {
	ee := New(nil).Category(CategoryState).Build()
	assert.Equal(t, "state", ee.Error())
	assert.NoError(t, ee.Unwrap())
}

func TestComponentDetectionWithActiveReporter(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("request timeout while waiting")).Build()

	assert.Equal(t, CategoryTimeout, ee.Category)
	require.Len(t, reporter.reported, 1)
	assert.True(t, ee.IsReported())
}

func TestLookupComponentPrefersLongestPattern(t *testing.T) {
	tests := []struct {
		funcName string
		want     string
	}{
		{"github.com/tphakala/lightsheet-go/internal/stack/sourcesink.(*RawSink).AppendStack", "stack.sourcesink"},
		{"github.com/tphakala/lightsheet-go/internal/stack.(*Stack).Release", "stack"},
		{"github.com/tphakala/lightsheet-go/internal/pipeline/processors.(*MaxProjection).Process", "pipeline.processors"},
		{"main.main", ComponentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, lookupComponent(tt.funcName))
		})
	}
}

func TestBasicScrub(t *testing.T) {
	t.Parallel()

	scrubbed := basicScrub("Error at https://sentry.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://sentry.example.com?[REDACTED]", scrubbed)

	scrubbed = basicScrub("Config error: api_key=secret123 is invalid")
	assert.Contains(t, scrubbed, "[API_KEY_REDACTED]")

	scrubbed = basicScrub("cannot open /home/alice/data/stacks.raw")
	assert.False(t, strings.Contains(scrubbed, "alice"))
}

func TestGenerateErrorTitle(t *testing.T) {
	ee := New(NewStd("boom")).
		Component("pipeline").
		Category(CategoryWorker).
		Context("operation", "pass_or_wait").
		Build()

	assert.Equal(t, "Pipeline Worker Error Pass Or Wait", generateErrorTitle(ee))
}
