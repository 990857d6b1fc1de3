package microscope

import (
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/stack"
)

// UseRecycler creates, or reuses, the named recycler sized for the
// registered cameras and assigns it to all of them. maxAvailable and
// maxLive are per camera.
func (m *Microscope) UseRecycler(name string, maxAvailable, maxLive int) (*stack.Recycler, error) {
	cameras := m.NumberOfCameras()
	r, err := m.recyclers.Recycler(name, max(1, 1+cameras*maxLive), max(1, cameras*maxAvailable))
	if err != nil {
		return nil, err
	}
	m.SetRecycler(r)
	return r, nil
}

// SetRecycler assigns r to every camera.
func (m *Microscope) SetRecycler(r *stack.Recycler) {
	m.recyclers.Put(r)
	for _, c := range m.snapshotCameras() {
		c.device.SetRecycler(r)
	}
}

// SetCameraRecycler assigns r to camera i.
func (m *Microscope) SetCameraRecycler(i int, r *stack.Recycler) error {
	c, ok := m.camera(i)
	if !ok {
		return errors.New(ErrNoSuchCamera).Context("camera", i).Build()
	}
	m.recyclers.Put(r)
	c.device.SetRecycler(r)
	return nil
}

// CameraRecycler returns the recycler of camera i.
func (m *Microscope) CameraRecycler(i int) (*stack.Recycler, bool) {
	c, ok := m.camera(i)
	if !ok {
		return nil, false
	}
	r := c.device.Recycler()
	return r, r != nil
}

// ClearRecycler frees the available stacks of the named recycler.
func (m *Microscope) ClearRecycler(name string) bool {
	return m.recyclers.Clear(name)
}

// ClearAllRecyclers frees the available stacks of every recycler.
func (m *Microscope) ClearAllRecyclers() {
	m.recyclers.ClearAll()
}

// Recyclers returns the recycler manager.
func (m *Microscope) Recyclers() *stack.RecyclerManager { return m.recyclers }
