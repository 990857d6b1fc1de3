// Package microscope orchestrates the devices of a light-sheet microscope:
// it owns the device registry, builds composite queues, plays them on all
// devices at once and feeds camera stacks into the processing pipeline.
package microscope

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
	"github.com/tphakala/lightsheet-go/internal/pipeline"
	"github.com/tphakala/lightsheet-go/internal/recycler"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// RetainedStacks is the number of processed stacks kept by the cleanup sink.
const RetainedStacks = 3

// Options configures a Microscope.
type Options struct {
	Settings        *conf.Settings
	Metrics         Metrics
	PipelineMetrics pipeline.Metrics
	RecyclerMetrics recycler.Metrics
	Recorder        Recorder
	Logger          *slog.Logger
}

type entry struct {
	index  int
	device device.Device
}

// camera is the microscope side of a registered stack camera.
type camera struct {
	device   device.StackCamera
	acquired *variable.Variable[StackInfo]
	remove   func()
}

// Microscope is the device orchestrator. Methods taking a context honour
// its cancellation while acquiring the master lock.
type Microscope struct {
	name     string
	settings *conf.Settings
	logger   *slog.Logger
	metrics  Metrics
	recorder Recorder

	lock chan struct{} // master lock, see Lock

	recyclers *stack.RecyclerManager
	pipeline  *pipeline.Pipeline
	sink      *pipeline.CleanupSink

	playedQueue *variable.Variable[*Queue]
	simulation  atomic.Bool
	lastStacks  atomic.Int64 // average timestamp of the last stacks waited for

	mu         sync.RWMutex
	devices    []entry
	cameras    []*camera
	pixelSizes map[int]*variable.Variable[float64]
}

// New creates a microscope with an empty registry. The stack pipeline is
// registered as its first device.
func New(name string, opts Options) *Microscope {
	settings := opts.Settings
	if settings == nil {
		settings = conf.Defaults()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("microscope")
		if logger == nil {
			logger = slog.Default()
		}
	}
	logger = logger.With("component", ComponentMicroscope, "microscope", name)

	var metrics Metrics = noopMetrics{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}

	recyclers := stack.NewRecyclerManager(stack.ManagerOptions{
		MinFreeMemoryPercent: settings.Recycler.MinFreeMemoryPercent,
		Metrics:              opts.RecyclerMetrics,
		Logger:               logger,
	})

	pipelineOpts := pipeline.OptionsFrom(settings.Pipeline)
	pipelineOpts.Recyclers = recyclers
	pipelineOpts.Metrics = opts.PipelineMetrics
	pipelineOpts.Logger = logger
	p := pipeline.New(name+".pipeline", pipelineOpts)

	m := &Microscope{
		name:        name,
		settings:    settings,
		logger:      logger,
		metrics:     metrics,
		recorder:    opts.Recorder,
		lock:        make(chan struct{}, 1),
		recyclers:   recyclers,
		pipeline:    p,
		sink:        pipeline.NewCleanupSink(p.OutputVariable(), RetainedStacks),
		playedQueue: variable.New[*Queue](name+".played_queue", nil),
		pixelSizes:  make(map[int]*variable.Variable[float64]),
	}
	m.devices = append(m.devices, entry{index: 0, device: p})
	return m
}

// Name returns the microscope name.
func (m *Microscope) Name() string { return m.name }

// Settings returns the settings the microscope was created with.
func (m *Microscope) Settings() *conf.Settings { return m.settings }

// AddDevice registers d under the master lock. The index distinguishes
// devices of the same kind; registering the same kind twice at one index
// fails. Stack cameras are connected to the pipeline input.
func (m *Microscope) AddDevice(ctx context.Context, index int, d device.Device) error {
	return m.Lock(ctx, func(context.Context) error {
		return m.addDevice(index, d)
	})
}

func (m *Microscope) addDevice(index int, d device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := reflect.TypeOf(d)
	for _, e := range m.devices {
		if e.index == index && reflect.TypeOf(e.device) == kind {
			return errors.New(ErrDeviceExists).
				Context("device", d.Name()).
				Context("kind", kind.String()).
				Context("index", index).
				Build()
		}
	}
	m.devices = append(m.devices, entry{index: index, device: d})

	if cam, ok := d.(device.StackCamera); ok {
		m.cameras = append(m.cameras, m.connectCamera(cam))
	}

	m.logger.Info("device added",
		"device", d.Name(),
		"kind", kind.String(),
		"index", index)
	return nil
}

// connectCamera forwards the stacks of cam into the pipeline. A stack the
// pipeline does not accept in time is released and counted as dropped.
func (m *Microscope) connectCamera(cam device.StackCamera) *camera {
	c := &camera{
		device:   cam,
		acquired: variable.New(cam.Name()+".acquired", StackInfo{}),
	}
	timeout := m.settings.Pipeline.PassTimeout
	c.remove = cam.StackVariable().AddSetListener(func(_, s *stack.Stack) {
		if s == nil {
			return
		}
		c.acquired.Set(StackInfo{
			Camera:         cam.Name(),
			Index:          s.Index(),
			TimestampNanos: s.TimestampNanos(),
			Channel:        s.Channel(),
			Width:          s.Width(),
			Height:         s.Height(),
			Depth:          s.Depth(),
		})

		if m.pipeline.PassOrWait(context.Background(), s, timeout) {
			return
		}
		m.metrics.RecordCameraDrop(m.name, cam.Name())
		m.logger.Warn("stack dropped, pipeline did not accept it",
			"camera", cam.Name(),
			"stack_index", s.Index(),
			"timeout", timeout)
		s.Release()
	})
	return c
}

// RemoveDevice unregisters d under the master lock and disconnects it if it
// is a camera. It reports false when d was not registered or the lock could
// not be acquired before ctx ended.
func (m *Microscope) RemoveDevice(ctx context.Context, d device.Device) bool {
	removed := false
	err := m.Lock(ctx, func(context.Context) error {
		removed = m.removeDevice(d)
		return nil
	})
	if err != nil {
		m.logger.Warn("device not removed", "device", d.Name(), "error", err)
	}
	return removed
}

func (m *Microscope) removeDevice(d device.Device) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.devices {
		if e.device != d {
			continue
		}
		m.devices = append(m.devices[:i:i], m.devices[i+1:]...)
		for j, c := range m.cameras {
			if device.Device(c.device) == d {
				c.remove()
				m.cameras = append(m.cameras[:j:j], m.cameras[j+1:]...)
				break
			}
		}
		return true
	}
	return false
}

func (m *Microscope) snapshot() []device.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]device.Device, len(m.devices))
	for i, e := range m.devices {
		out[i] = e.device
	}
	return out
}

func (m *Microscope) camera(i int) (*camera, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.cameras) {
		return nil, false
	}
	return m.cameras[i], true
}

func (m *Microscope) snapshotCameras() []*camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*camera(nil), m.cameras...)
}

// Devices returns the registered devices implementing T in registration order.
func Devices[T any](m *Microscope) []T {
	var out []T
	for _, d := range m.snapshot() {
		if t, ok := d.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// Device returns the i-th registered device implementing T.
func Device[T any](m *Microscope, i int) (T, bool) {
	devices := Devices[T](m)
	if i < 0 || i >= len(devices) {
		var zero T
		return zero, false
	}
	return devices[i], true
}

// NumberOfDevices returns the number of registered devices implementing T.
func NumberOfDevices[T any](m *Microscope) int {
	return len(Devices[T](m))
}

// NumberOfCameras returns the number of registered stack cameras.
func (m *Microscope) NumberOfCameras() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cameras)
}

func (m *Microscope) String() string {
	return fmt.Sprintf("Microscope[%s, %d devices]", m.name, len(m.snapshot()))
}
