package microscope

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// fakeDevice is a queue device whose playback completes with a fixed result.
type fakeDevice struct {
	name      string
	result    bool
	nilFuture bool
	block     chan struct{} // playback waits until closed, if set
	active    atomic.Bool
	played    atomic.Int32

	openResult  bool
	startResult bool
	calls       *callLog
}

func newFakeDevice(name string, result bool) *fakeDevice {
	d := &fakeDevice{name: name, result: result, openResult: true, startResult: true}
	d.active.Store(true)
	return d
}

func (d *fakeDevice) Name() string   { return d.name }
func (d *fakeDevice) IsActive() bool { return d.active.Load() }

func (d *fakeDevice) RequestQueue() device.Queue {
	return device.NewQueueBase[int](d.name, 0, nil)
}

func (d *fakeDevice) PlayQueue(q device.Queue) *future.Future[bool] {
	if d.nilFuture {
		return nil
	}
	qb, err := device.Cast[int](q, d.name)
	if err != nil {
		return future.Failed[bool](err)
	}
	if _, err := qb.BeginPlayback(); err != nil {
		return future.Failed[bool](err)
	}
	d.played.Add(1)
	return future.Go(context.Background(), func(context.Context) (bool, error) {
		defer qb.EndPlayback()
		if d.block != nil {
			<-d.block
		}
		return d.result, nil
	})
}

func (d *fakeDevice) Open() bool {
	d.calls.add("open " + d.name)
	return d.openResult
}

func (d *fakeDevice) Close() bool {
	d.calls.add("close " + d.name)
	return true
}

func (d *fakeDevice) Start() bool {
	d.calls.add("start " + d.name)
	return d.startResult
}

func (d *fakeDevice) Stop() bool {
	d.calls.add("stop " + d.name)
	return true
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// fakeCamera publishes one 4x4x1 stack per playback.
type fakeCamera struct {
	name      string
	timestamp int64
	stacks    *variable.Variable[*stack.Stack]

	mu       sync.Mutex
	recycler *stack.Recycler
	index    atomic.Int64
}

func newFakeCamera(name string, timestamp int64) *fakeCamera {
	return &fakeCamera{name: name, timestamp: timestamp, stacks: variable.New[*stack.Stack](name+".stack", nil)}
}

func (c *fakeCamera) Name() string { return c.name }

func (c *fakeCamera) RequestQueue() device.Queue {
	return device.NewQueueBase[int](c.name, 0, nil)
}

func (c *fakeCamera) StackVariable() *variable.Variable[*stack.Stack] { return c.stacks }

func (c *fakeCamera) SetRecycler(r *stack.Recycler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recycler = r
}

func (c *fakeCamera) Recycler() *stack.Recycler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recycler
}

func (c *fakeCamera) PlayQueue(q device.Queue) *future.Future[bool] {
	qb, err := device.Cast[int](q, c.name)
	if err != nil {
		return future.Failed[bool](err)
	}
	if _, err := qb.BeginPlayback(); err != nil {
		return future.Failed[bool](err)
	}
	return future.Go(context.Background(), func(ctx context.Context) (bool, error) {
		defer qb.EndPlayback()
		s, err := c.Recycler().GetOrWait(ctx, time.Second, stack.NewRequest(4, 4, 1))
		if err != nil {
			return false, err
		}
		s.SetIndex(c.index.Add(1))
		s.SetTimestampNanos(c.timestamp)
		c.stacks.Set(s)
		return true, nil
	})
}

// fakeStage has the four main stage axes and moves instantly.
type fakeStage struct {
	targets []*variable.Variable[float64]
	current []*variable.Variable[float64]
}

var stageDOFs = []string{DOFX, DOFY, DOFZ, DOFR}

func newFakeStage() *fakeStage {
	s := &fakeStage{}
	for _, dof := range stageDOFs {
		target := variable.New(dof+".target", 0.0)
		current := variable.New(dof+".current", 0.0)
		target.SendUpdatesTo(current)
		s.targets = append(s.targets, target)
		s.current = append(s.current, current)
	}
	return s
}

func (s *fakeStage) Name() string                                        { return "stage" }
func (s *fakeStage) RequestQueue() device.Queue                          { return nil }
func (s *fakeStage) PlayQueue(device.Queue) *future.Future[bool]         { return nil }
func (s *fakeStage) NumberOfDOFs() int                                   { return len(stageDOFs) }
func (s *fakeStage) DOFName(i int) string                                { return stageDOFs[i] }
func (s *fakeStage) TargetPosition(dof int) *variable.Variable[float64]  { return s.targets[dof] }
func (s *fakeStage) CurrentPosition(dof int) *variable.Variable[float64] { return s.current[dof] }

func (s *fakeStage) DOFIndex(name string) int {
	for i, dof := range stageDOFs {
		if dof == name {
			return i
		}
	}
	return -1
}

type recordingRecorder struct {
	mu        sync.Mutex
	playbacks []PlaybackRecord
	stacks    []StackRecord
}

func (r *recordingRecorder) RecordPlayback(_ context.Context, rec PlaybackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playbacks = append(r.playbacks, rec)
	return nil
}

func (r *recordingRecorder) RecordStack(_ context.Context, rec StackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stacks = append(r.stacks, rec)
	return nil
}

type recordingMetrics struct {
	mu        sync.Mutex
	playbacks map[bool]int
	lifecycle map[string]int
	drops     int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{playbacks: map[bool]int{}, lifecycle: map[string]int{}}
}

func (m *recordingMetrics) RecordPlayback(_ string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbacks[success]++
}

func (m *recordingMetrics) RecordLifecycle(_, operation, _ string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.lifecycle[operation]++
	}
}

func (m *recordingMetrics) RecordCameraDrop(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops++
}

func (m *recordingMetrics) dropCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}
