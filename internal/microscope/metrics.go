package microscope

import "time"

// Lifecycle operations reported to Metrics.
const (
	OperationOpen  = "open"
	OperationClose = "close"
	OperationStart = "start"
	OperationStop  = "stop"
)

// Metrics receives orchestration events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordPlayback(microscope string, success bool, duration time.Duration)
	RecordLifecycle(microscope, operation, device string, success bool)
	RecordCameraDrop(microscope, camera string)
}

type noopMetrics struct{}

func (noopMetrics) RecordPlayback(string, bool, time.Duration)   {}
func (noopMetrics) RecordLifecycle(string, string, string, bool) {}
func (noopMetrics) RecordCameraDrop(string, string)              {}
