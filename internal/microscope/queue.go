package microscope

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/errors"
)

type deviceQueue struct {
	device device.QueueDevice
	queue  device.Queue
}

// Queue is a composite queue holding one queue per queueable device. Time
// points are added to every device queue at once.
type Queue struct {
	id         uuid.UUID
	microscope *Microscope

	mu     sync.Mutex
	queues []deviceQueue
	length int
}

// RequestQueue returns a new composite queue staged from the current
// settings of every queueable device.
func (m *Microscope) RequestQueue(ctx context.Context) (*Queue, error) {
	var q *Queue
	err := m.Lock(ctx, func(context.Context) error {
		q = &Queue{id: uuid.New(), microscope: m}
		for _, d := range Devices[device.QueueDevice](m) {
			dq := d.RequestQueue()
			if dq == nil {
				continue
			}
			q.queues = append(q.queues, deviceQueue{device: d, queue: dq})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.logger.Enabled(ctx, slog.LevelDebug) {
		m.logger.Debug("queue requested", "queue_id", q.id, "devices", len(q.queues))
	}
	return q, nil
}

// ID identifies the queue in logs and the journal.
func (q *Queue) ID() uuid.UUID { return q.id }

// DeviceQueue returns the queue of d.
func (q *Queue) DeviceQueue(d device.QueueDevice) (device.Queue, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, dq := range q.queues {
		if dq.device == d {
			return dq.queue, true
		}
	}
	return nil, false
}

// Devices returns the devices taking part in the queue.
func (q *Queue) Devices() []device.QueueDevice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]device.QueueDevice, len(q.queues))
	for i, dq := range q.queues {
		out[i] = dq.device
	}
	return out
}

// AddCurrentStateToQueue appends the staged state of every device as one
// time point. Device errors are joined and the time point is removed again
// from the devices that took it, so all device queues keep the same length.
func (q *Queue) AddCurrentStateToQueue() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lengths := make([]int, len(q.queues))
	for i, dq := range q.queues {
		lengths[i] = dq.queue.QueueLength()
	}

	var errs []error
	for _, dq := range q.queues {
		if err := dq.queue.AddCurrentStateToQueue(); err != nil {
			errs = append(errs, errors.New(err).
				Component(ComponentMicroscope).
				Context("device", dq.device.Name()).
				Context("queue_id", q.id.String()).
				Build())
		}
	}
	if len(errs) > 0 {
		for i, dq := range q.queues {
			dq.queue.Truncate(lengths[i])
		}
		return errors.Join(errs...)
	}
	q.length++
	return nil
}

// FinalizeQueue freezes every device queue. Finalizing twice is allowed.
func (q *Queue) FinalizeQueue() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	for _, dq := range q.queues {
		if err := dq.queue.FinalizeQueue(); err != nil {
			errs = append(errs, errors.New(err).
				Component(ComponentMicroscope).
				Context("device", dq.device.Name()).
				Context("queue_id", q.id.String()).
				Build())
		}
	}
	return errors.Join(errs...)
}

// Clear empties every device queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, dq := range q.queues {
		dq.queue.Clear()
	}
	q.length = 0
}

// QueueLength returns the number of time points added to all devices.
func (q *Queue) QueueLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

func (q *Queue) entries() []deviceQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]deviceQueue(nil), q.queues...)
}
