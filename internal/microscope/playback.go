package microscope

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// PlayQueue finalizes q and starts playback on every device of the queue.
// It returns without waiting; the returned list aggregates the device
// futures. Devices that are switched off, or that return a nil future, do
// not take part in the aggregation.
func (m *Microscope) PlayQueue(ctx context.Context, q *Queue) (*future.BoolList, error) {
	if q == nil || q.microscope != m {
		return nil, errors.New(ErrForeignQueue).Context("microscope", m.name).Build()
	}

	var list *future.BoolList
	err := m.Lock(ctx, func(ctx context.Context) error {
		if err := q.FinalizeQueue(); err != nil {
			return err
		}
		m.playedQueue.Set(q)

		list = future.NewBoolList()
		for _, dq := range q.entries() {
			if a, ok := dq.device.(device.Activable); ok && !a.IsActive() {
				m.logger.Debug("skipping inactive device", "device", dq.device.Name())
				continue
			}
			list.Add(dq.device.Name(), dq.device.PlayQueue(dq.queue))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// PlayQueueAndWait plays q and waits up to timeout for every device. The
// result is the AND of the device results. A timeout yields false with an
// error wrapping future.ErrTimeout; device work is not cancelled. With no
// queueable devices the result is true immediately.
func (m *Microscope) PlayQueueAndWait(ctx context.Context, q *Queue, timeout time.Duration) (bool, error) {
	var ok bool
	err := m.Lock(ctx, func(ctx context.Context) error {
		var rec PlaybackRecord
		var err error
		ok, rec, err = m.playAndWait(ctx, q, timeout)
		m.record(ctx, rec, nil)
		return err
	})
	return ok, err
}

// PlayQueueAndWaitForStacks is PlayQueueAndWait that also waits, when the
// playback succeeded, for one stack from every camera taking part. The wait
// for stacks shares timeout. The result is the playback result; missing
// stacks are logged.
func (m *Microscope) PlayQueueAndWaitForStacks(ctx context.Context, q *Queue, timeout time.Duration) (bool, error) {
	var ok bool
	err := m.Lock(ctx, func(ctx context.Context) error {
		cameras := m.playingCameras(q)
		latches := make([]<-chan StackInfo, len(cameras))
		for i, c := range cameras {
			ch, cancel := variable.NextChange(c.acquired)
			defer cancel()
			latches[i] = ch
		}

		var rec PlaybackRecord
		var err error
		ok, rec, err = m.playAndWait(ctx, q, timeout)

		var stacks []StackInfo
		if ok {
			stacks = m.awaitStacks(ctx, cameras, latches, timeout)
		}
		m.record(ctx, rec, stacks)
		return err
	})
	return ok, err
}

// LastAcquiredStacksTimestamp returns the average timestamp in nanoseconds
// of the stacks received by the last PlayQueueAndWaitForStacks.
func (m *Microscope) LastAcquiredStacksTimestamp() int64 {
	return m.lastStacks.Load()
}

func (m *Microscope) playAndWait(ctx context.Context, q *Queue, timeout time.Duration) (bool, PlaybackRecord, error) {
	start := time.Now()
	rec := PlaybackRecord{ID: uuid.New(), Microscope: m.name, StartedAt: start}

	list, err := m.PlayQueue(ctx, q)
	if err != nil {
		m.metrics.RecordPlayback(m.name, false, time.Since(start))
		return false, rec, err
	}
	rec.QueueID = q.ID()
	rec.TimePoints = q.QueueLength()
	rec.Devices = list.Names()

	ok, err := list.Get(ctx, timeout)
	rec.Duration = time.Since(start)
	rec.Success = ok

	m.metrics.RecordPlayback(m.name, ok, rec.Duration)
	if ok {
		m.logger.Info("queue played",
			"queue_id", rec.QueueID,
			"devices", len(rec.Devices),
			"time_points", rec.TimePoints,
			"duration", rec.Duration)
	} else {
		m.logger.Warn("queue playback failed",
			"queue_id", rec.QueueID,
			"devices", rec.Devices,
			"timeout", timeout,
			"error", err)
	}
	return ok, rec, err
}

// playingCameras returns the registered cameras that take part in q.
func (m *Microscope) playingCameras(q *Queue) []*camera {
	if q == nil {
		return nil
	}
	var out []*camera
	for _, c := range m.snapshotCameras() {
		if a, ok := c.device.(device.Activable); ok && !a.IsActive() {
			continue
		}
		if _, ok := q.DeviceQueue(c.device); ok {
			out = append(out, c)
		}
	}
	return out
}

func (m *Microscope) awaitStacks(ctx context.Context, cameras []*camera, latches []<-chan StackInfo, timeout time.Duration) []StackInfo {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	stacks := make([]StackInfo, 0, len(latches))
wait:
	for i, ch := range latches {
		select {
		case info := <-ch:
			stacks = append(stacks, info)
		case <-expired:
			m.logger.Warn("timed out waiting for stacks",
				"missing_camera", cameras[i].device.Name(),
				"received", len(stacks),
				"expected", len(latches))
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	if len(stacks) > 0 {
		var sum int64
		for _, s := range stacks {
			sum += s.TimestampNanos
		}
		m.lastStacks.Store(sum / int64(len(stacks)))
	}
	return stacks
}

// record hands the playback to the recorder, if one is configured.
func (m *Microscope) record(ctx context.Context, rec PlaybackRecord, stacks []StackInfo) {
	if m.recorder == nil || rec.QueueID == uuid.Nil {
		return
	}
	if err := m.recorder.RecordPlayback(ctx, rec); err != nil {
		m.logger.Warn("failed to record playback", "playback_id", rec.ID, "error", err)
		return
	}
	for _, info := range stacks {
		if err := m.recorder.RecordStack(ctx, StackRecord{PlaybackID: rec.ID, StackInfo: info}); err != nil {
			m.logger.Warn("failed to record stack",
				"playback_id", rec.ID,
				"camera", info.Camera,
				"error", err)
		}
	}
	if m.logger.Enabled(ctx, slog.LevelDebug) {
		m.logger.Debug("playback recorded", "playback_id", rec.ID, "stacks", len(stacks))
	}
}

// PlayedQueueVariable is set with every queue passed to PlayQueue.
func (m *Microscope) PlayedQueueVariable() *variable.Variable[*Queue] {
	return m.playedQueue
}
