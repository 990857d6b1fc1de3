// Package timelapse paces repeated acquisitions at a fixed interval.
package timelapse

import (
	"context"
	"sync"
	"time"
)

// Timer tracks when the next time point of a timelapse is due. The first
// time point is due immediately; each NotifyAcquisition schedules the next
// one interval later.
type Timer struct {
	mu           sync.Mutex
	interval     time.Duration
	last         time.Time
	acquisitions int
	now          func() time.Time
}

// NewTimer returns a timer for the given interval.
func NewTimer(interval time.Duration) *Timer {
	return &Timer{interval: max(interval, 0), now: time.Now}
}

// Interval returns the time between time points.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval changes the time between time points. It applies to the next wait.
func (t *Timer) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = max(d, 0)
}

// TimeLeftBeforeNextTimePoint returns how long until the next time point is
// due, zero when it is already due.
func (t *Timer) TimeLeftBeforeNextTimePoint() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeLeftLocked()
}

func (t *Timer) timeLeftLocked() time.Duration {
	if t.last.IsZero() {
		return 0
	}
	return max(t.last.Add(t.interval).Sub(t.now()), 0)
}

// EnoughTimeFor reports whether a task taking needed, plus reserved, fits
// before the next time point.
func (t *Timer) EnoughTimeFor(needed, reserved time.Duration) bool {
	if needed < 0 {
		return false
	}
	return t.TimeLeftBeforeNextTimePoint()-reserved > needed
}

// WaitToAcquire blocks until the next time point is due. It returns false
// without waiting further when timeout (if not negative) elapses first or
// ctx ends.
func (t *Timer) WaitToAcquire(ctx context.Context, timeout time.Duration) bool {
	left := t.TimeLeftBeforeNextTimePoint()
	if left <= 0 {
		return ctx.Err() == nil
	}

	wait, due := left, true
	if timeout >= 0 && timeout < left {
		wait, due = timeout, false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return due
	case <-ctx.Done():
		return false
	}
}

// LastAcquisitionTime returns when NotifyAcquisition was last called, the
// zero time before the first acquisition.
func (t *Timer) LastAcquisitionTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// NotifyAcquisition records that a time point was acquired now.
func (t *Timer) NotifyAcquisition() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = t.now()
	t.acquisitions++
}

// Acquisitions returns the number of recorded time points.
func (t *Timer) Acquisitions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquisitions
}
