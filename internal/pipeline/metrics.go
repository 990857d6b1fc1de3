package pipeline

import "time"

// Drop reasons reported to Metrics.
const (
	DropQueueFull      = "queue_full"
	DropNotStarted     = "not_started"
	DropProcessorError = "processor_error"
	DropFiltered       = "filtered"
	DropStopped        = "stopped"
	DropNoConsumer     = "no_consumer"
)

// Metrics receives pipeline activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordStackIn(pipeline string)
	RecordStackOut(pipeline string)
	RecordDropped(pipeline, reason string)
	RecordProcessorError(pipeline, processor string)
	RecordProcessing(pipeline, processor string, d time.Duration)
	UpdateQueueLength(pipeline string, n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordStackIn(string)                           {}
func (noopMetrics) RecordStackOut(string)                          {}
func (noopMetrics) RecordDropped(string, string)                   {}
func (noopMetrics) RecordProcessorError(string, string)            {}
func (noopMetrics) RecordProcessing(string, string, time.Duration) {}
func (noopMetrics) UpdateQueueLength(string, int)                  {}
