package sim

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/stack/sourcesink"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// CameraState is the staged state of a camera for one time point.
type CameraState struct {
	Exposure  time.Duration
	KeepPlane bool
}

// acquisition is a camera playback waiting for its trigger edges.
type acquisition struct {
	points []CameraState
	edges  int
	queue  *device.QueueBase[CameraState]
	result *future.Future[bool]
}

// Camera is a simulated stack camera. During playback it counts rising
// trigger edges, one per queued time point, and then produces one stack
// whose depth is the number of kept planes. Without a trigger it produces
// the stack right away.
type Camera struct {
	name        string
	index       int
	pattern     string
	pixelSizeNm float64
	waitTimeout time.Duration
	logger      *slog.Logger
	limiter     *rate.Limiter
	run         *runState

	width          *variable.Variable[int64]
	height         *variable.Variable[int64]
	bytesPerVoxel  int64
	channel        *variable.Variable[int]
	imagesPerPlane *variable.Variable[int]
	exposure       *variable.Variable[time.Duration]
	keepPlane      *variable.Variable[bool]
	stacks         *variable.Variable[*stack.Stack]

	mu            sync.Mutex
	recycler      *stack.Recycler
	source        sourcesink.Source
	pending       *acquisition
	removeTrigger func()

	acquired atomic.Int64
}

// NewCamera returns camera index configured from settings.
func NewCamera(name string, index int, settings *conf.Settings) *Camera {
	cs := settings.Cameras
	c := &Camera{
		name:           name,
		index:          index,
		pattern:        cs.Pattern,
		pixelSizeNm:    settings.PixelSizeNm(index),
		waitTimeout:    settings.Recycler.WaitTimeout,
		logger:         deviceLogger("camera", name),
		run:            newRunState(),
		width:          variable.New(name+".width", int64(cs.Width)),
		height:         variable.New(name+".height", int64(cs.Height)),
		bytesPerVoxel:  int64(max(cs.BytesPerVoxel, 1)),
		channel:        variable.New(name+".channel", index),
		imagesPerPlane: variable.New(name+".images_per_plane", 1),
		exposure:       variable.New(name+".exposure", cs.Exposure),
		keepPlane:      variable.New(name+".keep_plane", true),
		stacks:         variable.New[*stack.Stack](name+".stack", nil),
	}
	if cs.MaxFrameRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cs.MaxFrameRate), 1)
	}
	return c
}

func (c *Camera) Name() string { return c.name }
func (c *Camera) Open() bool   { return true }

func (c *Camera) Close() bool {
	c.Stop()
	return true
}

func (c *Camera) Start() bool {
	c.run.start()
	return true
}

// Stop abandons a pending acquisition and waits for stack generation to end.
func (c *Camera) Stop() bool {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if pending != nil {
		c.finish(pending, false, errors.New(ErrStopped).Context("device", c.name).Build())
	}
	c.run.stop()
	return true
}

// StackVariable is set with every produced stack. The receiver owns it.
func (c *Camera) StackVariable() *variable.Variable[*stack.Stack] { return c.stacks }

// WidthVariable is the image width in pixels.
func (c *Camera) WidthVariable() *variable.Variable[int64] { return c.width }

// HeightVariable is the image height in pixels.
func (c *Camera) HeightVariable() *variable.Variable[int64] { return c.height }

// ChannelVariable is the channel written into stack metadata.
func (c *Camera) ChannelVariable() *variable.Variable[int] { return c.channel }

// ImagesPerPlaneVariable is the number of images per plane written into stack metadata.
func (c *Camera) ImagesPerPlaneVariable() *variable.Variable[int] { return c.imagesPerPlane }

// ExposureVariable is the exposure new queues are staged with.
func (c *Camera) ExposureVariable() *variable.Variable[time.Duration] { return c.exposure }

// KeepPlaneVariable decides whether new time points are kept in the stack.
func (c *Camera) KeepPlaneVariable() *variable.Variable[bool] { return c.keepPlane }

// AcquiredStacks returns the number of stacks published.
func (c *Camera) AcquiredStacks() int64 { return c.acquired.Load() }

// SetRecycler sets the recycler stacks are taken from.
func (c *Camera) SetRecycler(r *stack.Recycler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recycler = r
}

// Recycler returns the recycler stacks are taken from.
func (c *Camera) Recycler() *stack.Recycler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recycler
}

// SetSource makes the source pattern copy voxels from src.
func (c *Camera) SetSource(src sourcesink.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = src
}

// ConnectTrigger counts rising edges of trigger during playback.
// Connecting again replaces the previous trigger.
func (c *Camera) ConnectTrigger(trigger *variable.Variable[bool]) {
	remove := variable.OnRisingEdge(trigger, c.onTrigger)
	c.mu.Lock()
	previous := c.removeTrigger
	c.removeTrigger = remove
	c.mu.Unlock()
	if previous != nil {
		previous()
	}
}

// RequestQueue returns a queue staged from the exposure and keep plane variables.
func (c *Camera) RequestQueue() device.Queue {
	return device.NewQueueBase(c.name, CameraState{Exposure: c.exposure.Get(), KeepPlane: c.keepPlane.Get()}, nil)
}

// StageCamera modifies the staged state of a camera queue.
func StageCamera(q device.Queue, name string, fn func(*CameraState)) error {
	qb, err := device.Cast[CameraState](q, name)
	if err != nil {
		return err
	}
	return qb.Stage(fn)
}

// PlayQueue arms the camera for the queued time points.
func (c *Camera) PlayQueue(q device.Queue) *future.Future[bool] {
	qb, err := device.Cast[CameraState](q, c.name)
	if err != nil {
		return future.Failed[bool](err)
	}
	points, err := qb.BeginPlayback()
	if err != nil {
		return future.Failed[bool](err)
	}

	acq := &acquisition{points: points, queue: qb, result: future.New[bool]()}
	if len(points) == 0 {
		c.finish(acq, true, nil)
		return acq.result
	}

	c.mu.Lock()
	previous := c.pending
	triggered := c.removeTrigger != nil
	if triggered {
		c.pending = acq
	}
	c.mu.Unlock()

	if previous != nil {
		c.logger.Warn("previous acquisition abandoned", "received_edges", previous.edges)
		c.finish(previous, false, nil)
	}
	if !triggered {
		c.generateAsync(acq)
	}
	return acq.result
}

func (c *Camera) onTrigger() {
	c.mu.Lock()
	acq := c.pending
	if acq == nil {
		c.mu.Unlock()
		return
	}
	acq.edges++
	if acq.edges < len(acq.points) {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()

	c.generateAsync(acq)
}

func (c *Camera) generateAsync(acq *acquisition) {
	c.run.goRun(func(ctx context.Context) {
		ok, err := c.generate(ctx, acq)
		c.finish(acq, ok, err)
	})
}

func (c *Camera) finish(acq *acquisition, ok bool, err error) {
	acq.queue.EndPlayback()
	if err != nil {
		acq.result.Fail(err)
		return
	}
	acq.result.Complete(ok)
}

// generate produces and publishes the stack of acq. A stack that cannot be
// obtained in time drops the acquisition with false.
func (c *Camera) generate(ctx context.Context, acq *acquisition) (bool, error) {
	kept := 0
	for _, p := range acq.points {
		if p.KeepPlane {
			kept++
		}
	}
	if kept == 0 {
		return true, nil
	}

	c.mu.Lock()
	r, src := c.recycler, c.source
	c.mu.Unlock()
	if r == nil {
		return false, errors.New(ErrNoRecycler).Context("device", c.name).Build()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, nil
		}
	}

	req := stack.Request{
		Width:         c.width.Get(),
		Height:        c.height.Get(),
		Depth:         int64(kept),
		BytesPerVoxel: c.bytesPerVoxel,
	}
	s, err := r.GetOrWait(ctx, c.waitTimeout, req)
	if err != nil {
		c.logger.Warn("no stack available, dropping time point",
			"request", req.String(),
			"timeout", c.waitTimeout,
			"error", err)
		return false, nil
	}

	index := c.acquired.Add(1) - 1
	if err := c.render(ctx, s, src, index); err != nil {
		s.Release()
		return false, err
	}

	meta := s.Metadata()
	meta.Index = index
	meta.TimestampNanos = time.Now().UnixNano()
	meta.Channel = c.channel.Get()
	meta.NumberOfImagesPerPlane = c.imagesPerPlane.Get()
	meta.VoxelSize = [3]float64{c.pixelSizeNm, c.pixelSizeNm, 1}
	s.SetMetadata(meta)

	c.stacks.Set(s)
	return true, nil
}

func (c *Camera) render(ctx context.Context, s *stack.Stack, src sourcesink.Source, index int64) error {
	switch {
	case c.pattern == PatternSource && src != nil && src.NumberOfStacks() > 0:
		in, err := src.Stack(ctx, index%src.NumberOfStacks())
		if err != nil {
			return err
		}
		defer in.Release()
		copy(s.Bytes(), in.Bytes())
	case c.pattern == PatternSinus:
		fillStack(s, index, sinus)
	default:
		fillStack(s, index, fractal)
	}
	return nil
}
