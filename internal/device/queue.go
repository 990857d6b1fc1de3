package device

import (
	"sync"

	"github.com/tphakala/lightsheet-go/internal/errors"
)

// QueueState is the playback state of a device queue.
type QueueState int

const (
	QueueIdle QueueState = iota
	QueueStaging
	QueueReady
	QueuePlaying
)

func (s QueueState) String() string {
	switch s {
	case QueueIdle:
		return "idle"
	case QueueStaging:
		return "staging"
	case QueueReady:
		return "ready"
	case QueuePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// QueueBase implements Queue for a device whose staged parameters are
// captured in S. Each time point is an independent copy of S made with the
// snapshot function, so later staging never changes queued time points.
//
// State machine: Idle → Staging → Ready → Playing → Idle. A queue that has
// been finalized stays frozen after playback and may be played again;
// Clear returns it to an empty Idle queue.
type QueueBase[S any] struct {
	device   string
	snapshot func(S) S

	mu      sync.Mutex
	state   QueueState
	frozen  bool
	current S
	points  []S
}

// NewQueueBase creates an empty queue for device staged from initial.
// A nil snapshot copies S by value.
func NewQueueBase[S any](device string, initial S, snapshot func(S) S) *QueueBase[S] {
	if snapshot == nil {
		snapshot = func(s S) S { return s }
	}
	return &QueueBase[S]{device: device, snapshot: snapshot, current: snapshot(initial)}
}

// Device returns the name of the device owning the queue.
func (q *QueueBase[S]) Device() string {
	return q.device
}

// Stage modifies the staged state.
func (q *QueueBase[S]) Stage(fn func(staged *S)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.frozen {
		return q.frozenErrorLocked("stage")
	}
	fn(&q.current)
	q.state = QueueStaging
	return nil
}

// Current returns a copy of the staged state.
func (q *QueueBase[S]) Current() S {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot(q.current)
}

// AddCurrentStateToQueue appends a copy of the staged state as a time point.
func (q *QueueBase[S]) AddCurrentStateToQueue() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.frozen {
		return q.frozenErrorLocked("add_current_state")
	}
	q.points = append(q.points, q.snapshot(q.current))
	q.state = QueueStaging
	return nil
}

// FinalizeQueue freezes the queue. Finalizing an empty or an already
// finalized queue is allowed.
func (q *QueueBase[S]) FinalizeQueue() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueuePlaying {
		return q.frozenErrorLocked("finalize")
	}
	q.frozen = true
	q.state = QueueReady
	return nil
}

// BeginPlayback moves a finalized queue to Playing and returns its time
// points in append order.
func (q *QueueBase[S]) BeginPlayback() ([]S, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.frozen || q.state == QueuePlaying {
		return nil, errors.New(ErrQueueNotReady).
			Context("device", q.device).
			Context("state", q.state.String()).
			Build()
	}
	q.state = QueuePlaying
	return q.copyPointsLocked(), nil
}

// EndPlayback returns a playing queue to Idle. The queue stays frozen.
func (q *QueueBase[S]) EndPlayback() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueuePlaying {
		q.state = QueueIdle
	}
}

// Clear drops all time points. A playing queue is left untouched.
func (q *QueueBase[S]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueuePlaying {
		return
	}
	q.points = nil
	q.frozen = false
	q.state = QueueIdle
}

// Truncate drops the time points past the first n. A playing queue is
// left untouched.
func (q *QueueBase[S]) Truncate(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueuePlaying || n < 0 || n >= len(q.points) {
		return
	}
	clear(q.points[n:])
	q.points = q.points[:n]
}

// QueueLength returns the number of time points.
func (q *QueueBase[S]) QueueLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.points)
}

// State returns the current state.
func (q *QueueBase[S]) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// IsFrozen reports whether the queue was finalized.
func (q *QueueBase[S]) IsFrozen() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frozen
}

// TimePoints returns copies of the queued time points in append order.
func (q *QueueBase[S]) TimePoints() []S {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.copyPointsLocked()
}

func (q *QueueBase[S]) copyPointsLocked() []S {
	points := make([]S, len(q.points))
	for i, p := range q.points {
		points[i] = q.snapshot(p)
	}
	return points
}

func (q *QueueBase[S]) frozenErrorLocked(op string) error {
	return errors.New(ErrQueueFrozen).
		Context("device", q.device).
		Context("operation", op).
		Context("state", q.state.String()).
		Build()
}

// Cast returns q as the queue type of device, or ErrWrongQueue.
func Cast[S any](q Queue, device string) (*QueueBase[S], error) {
	base, ok := q.(*QueueBase[S])
	if !ok || base.device != device {
		return nil, errors.New(ErrWrongQueue).Context("device", device).Build()
	}
	return base, nil
}
