package microscope

import (
	"context"
	"slices"

	"github.com/tphakala/lightsheet-go/internal/device"
)

// Open opens every device holding a connection, pipeline first. It
// continues after failures and returns true only if every device opened.
func (m *Microscope) Open(ctx context.Context) bool {
	return m.lifecycle(ctx, OperationOpen, false, func(d device.Device) (bool, bool) {
		oc, ok := d.(device.OpenCloser)
		if !ok {
			return false, false
		}
		return oc.Open(), true
	})
}

// Close closes every device in reverse registration order and clears all
// stack recyclers afterwards.
func (m *Microscope) Close(ctx context.Context) bool {
	ok := m.lifecycle(ctx, OperationClose, true, func(d device.Device) (bool, bool) {
		oc, ok := d.(device.OpenCloser)
		if !ok {
			return false, false
		}
		return oc.Close(), true
	})
	m.ClearAllRecyclers()
	return ok
}

// Start starts every device with a running state, pipeline first.
func (m *Microscope) Start(ctx context.Context) bool {
	return m.lifecycle(ctx, OperationStart, false, func(d device.Device) (bool, bool) {
		ss, ok := d.(device.StartStopper)
		if !ok {
			return false, false
		}
		return ss.Start(), true
	})
}

// Stop stops every device in reverse registration order.
func (m *Microscope) Stop(ctx context.Context) bool {
	return m.lifecycle(ctx, OperationStop, true, func(d device.Device) (bool, bool) {
		ss, ok := d.(device.StartStopper)
		if !ok {
			return false, false
		}
		return ss.Stop(), true
	})
}

// lifecycle applies op to every device under the master lock. op reports
// the result and whether the device takes part in the operation.
func (m *Microscope) lifecycle(ctx context.Context, operation string, reverse bool, op func(device.Device) (result, applies bool)) bool {
	result := true
	err := m.Lock(ctx, func(ctx context.Context) error {
		devices := m.snapshot()
		if reverse {
			slices.Reverse(devices)
		}
		for _, d := range devices {
			m.logger.Info("device lifecycle", "operation", operation, "device", d.Name())
			ok, applies := op(d)
			if !applies {
				continue
			}
			m.metrics.RecordLifecycle(m.name, operation, d.Name(), ok)
			if !ok {
				m.logger.Warn("device lifecycle failed", "operation", operation, "device", d.Name())
				result = false
				continue
			}
			m.logger.Info("device lifecycle succeeded", "operation", operation, "device", d.Name())
		}
		return nil
	})
	if err != nil {
		m.logger.Error("lifecycle aborted", "operation", operation, "error", err)
		return false
	}
	return result
}

// Free disconnects the cameras, releases the stacks retained by the cleanup
// sink and frees every recycler. Call it after Close; stacks still held
// elsewhere are reported as an error.
func (m *Microscope) Free() error {
	for _, c := range m.snapshotCameras() {
		c.remove()
	}
	m.sink.Close()
	return m.recyclers.Free()
}
