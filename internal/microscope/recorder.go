package microscope

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlaybackRecord describes one synchronized playback.
type PlaybackRecord struct {
	ID         uuid.UUID
	Microscope string
	QueueID    uuid.UUID
	StartedAt  time.Time
	Duration   time.Duration
	Devices    []string
	TimePoints int
	Success    bool
}

// StackInfo is the metadata of an acquired stack, captured when the camera
// publishes it.
type StackInfo struct {
	Camera         string
	Index          int64
	TimestampNanos int64
	Channel        int
	Width          int64
	Height         int64
	Depth          int64
}

// StackRecord links an acquired stack to the playback that produced it.
type StackRecord struct {
	PlaybackID uuid.UUID
	StackInfo
}

// Recorder persists playback history. Errors are logged and do not fail
// the playback.
type Recorder interface {
	RecordPlayback(ctx context.Context, r PlaybackRecord) error
	RecordStack(ctx context.Context, r StackRecord) error
}
