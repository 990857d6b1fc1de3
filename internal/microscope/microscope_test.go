package microscope

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/testutil"
)

func testSettings() *conf.Settings {
	s := conf.Defaults()
	s.Recycler.MinFreeMemoryPercent = 0
	s.Pipeline.PassTimeout = 50 * time.Millisecond
	return s
}

func newTestMicroscope(t *testing.T, opts Options) *Microscope {
	t.Helper()
	if opts.Settings == nil {
		opts.Settings = testSettings()
	}
	m := New(t.Name(), opts)
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m
}

func playOnce(t *testing.T, m *Microscope, timeout time.Duration) (bool, error) {
	t.Helper()
	ctx := context.Background()
	q, err := m.RequestQueue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.AddCurrentStateToQueue())
	return m.PlayQueueAndWait(ctx, q, timeout)
}

// With no queueable devices the AND over device results is vacuously true.
func TestPlayQueueAndWaitWithoutDevicesIsTrue(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	ctx := context.Background()
	q, err := m.RequestQueue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.AddCurrentStateToQueue())

	start := time.Now()
	ok, err := m.PlayQueueAndWait(ctx, q, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Same(t, q, m.PlayedQueueVariable().Get())
	assert.Equal(t, 1, q.QueueLength())
}

func TestPlaybackResultIsAndOfDeviceResults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		results []bool
		want    bool
	}{
		{"single success", []bool{true}, true},
		{"single failure", []bool{false}, false},
		{"all succeed", []bool{true, true, true}, true},
		{"one fails", []bool{true, false, true}, false},
		{"all fail", []bool{false, false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			metrics := newRecordingMetrics()
			m := newTestMicroscope(t, Options{Metrics: metrics})
			devices := make([]*fakeDevice, len(tt.results))
			ctx := context.Background()
			for i, result := range tt.results {
				devices[i] = newFakeDevice("device", result)
				require.NoError(t, m.AddDevice(ctx, i, devices[i]))
			}

			ok, err := playOnce(t, m, time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			for _, d := range devices {
				assert.Equal(t, int32(1), d.played.Load())
			}

			metrics.mu.Lock()
			defer metrics.mu.Unlock()
			assert.Equal(t, 1, metrics.playbacks[tt.want])
		})
	}
}

func TestPlaybackTimeoutIsFailure(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	slow := newFakeDevice("slow", true)
	slow.block = make(chan struct{})
	t.Cleanup(func() { close(slow.block) })
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, newFakeDevice("fast", true)))
	require.NoError(t, m.AddDevice(ctx, 1, slow))

	start := time.Now()
	ok, err := playOnce(t, m, 50*time.Millisecond)
	assert.False(t, ok)
	require.ErrorIs(t, err, future.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExcludedDevicesDoNotTakePart(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	excluded := newFakeDevice("optical switch", false)
	excluded.nilFuture = true
	inactive := newFakeDevice("inactive", false)
	inactive.active.Store(false)
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, newFakeDevice("laser", true)))
	require.NoError(t, m.AddDevice(ctx, 1, excluded))
	require.NoError(t, m.AddDevice(ctx, 2, inactive))

	q, err := m.RequestQueue(ctx)
	require.NoError(t, err)
	list, err := m.PlayQueue(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"laser"}, list.Names())

	ok, err := list.Get(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, inactive.played.Load())
}

func TestQueueCanBeReplayed(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	d := newFakeDevice("laser", true)
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, d))

	q, err := m.RequestQueue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.AddCurrentStateToQueue())
	require.NoError(t, q.AddCurrentStateToQueue())

	for range 3 {
		ok, err := m.PlayQueueAndWait(ctx, q, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int32(3), d.played.Load())

	dq, found := q.DeviceQueue(d)
	require.True(t, found)
	assert.Equal(t, 2, dq.QueueLength())
	require.ErrorIs(t, q.AddCurrentStateToQueue(), device.ErrQueueFrozen)

	q.Clear()
	assert.Zero(t, q.QueueLength())
	require.NoError(t, q.AddCurrentStateToQueue())
}

func TestFailedTimePointIsRolledBack(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	laser := newFakeDevice("laser", true)
	shutter := newFakeDevice("shutter", true)
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, laser))
	require.NoError(t, m.AddDevice(ctx, 1, shutter))

	q, err := m.RequestQueue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.AddCurrentStateToQueue())

	sq, found := q.DeviceQueue(shutter)
	require.True(t, found)
	require.NoError(t, sq.FinalizeQueue())

	require.ErrorIs(t, q.AddCurrentStateToQueue(), device.ErrQueueFrozen)
	assert.Equal(t, 1, q.QueueLength())
	lq, found := q.DeviceQueue(laser)
	require.True(t, found)
	assert.Equal(t, 1, lq.QueueLength(), "the laser time point was removed again")
	assert.Equal(t, 1, sq.QueueLength())
}

func TestForeignQueueIsRejected(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	other := newTestMicroscope(t, Options{})
	q, err := other.RequestQueue(context.Background())
	require.NoError(t, err)

	_, err = m.PlayQueueAndWait(context.Background(), q, time.Second)
	require.ErrorIs(t, err, ErrForeignQueue)
}

func TestLockIsReentrant(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, newFakeDevice("laser", true)))

	done := make(chan error, 1)
	go func() {
		done <- m.Lock(context.Background(), func(ctx context.Context) error {
			return m.Lock(ctx, func(ctx context.Context) error {
				q, err := m.RequestQueue(ctx)
				if err != nil {
					return err
				}
				_, err = m.PlayQueueAndWait(ctx, q, time.Second)
				return err
			})
		})
	}()

	err := testutil.WaitForChannel(t, done, testutil.DefaultTestTimeout, "nested locking deadlocked")
	require.NoError(t, err)
}

func TestLockHonoursContext(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.Lock(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := m.Lock(ctx, func(context.Context) error {
		t.Error("lock acquired while held elsewhere")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, testutil.WaitForChannel(t, done, testutil.ShortTestTimeout, "holder did not finish"))
}

func TestLockTokenExpiresWithLock(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	other := newTestMicroscope(t, Options{})

	var stale context.Context
	require.NoError(t, m.Lock(context.Background(), func(ctx context.Context) error {
		assert.True(t, m.holdsLock(ctx))
		assert.False(t, other.holdsLock(ctx), "tokens are scoped to one microscope")
		stale = ctx
		return nil
	}))
	assert.False(t, m.holdsLock(stale))
}

func TestDeviceRegistry(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	a := newFakeDevice("a", true)
	b := newFakeDevice("b", true)

	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 1, a))
	require.ErrorIs(t, m.AddDevice(ctx, 1, b), ErrDeviceExists)
	require.NoError(t, m.AddDevice(ctx, 2, b))
	require.NoError(t, m.AddDevice(ctx, 1, newFakeStage()), "other kinds may share an index")

	assert.Equal(t, 4, NumberOfDevices[device.Device](m), "pipeline is registered")
	assert.Equal(t, 3, NumberOfDevices[device.QueueDevice](m))
	assert.Equal(t, 1, NumberOfDevices[device.Stage](m))
	assert.Equal(t, 3, NumberOfDevices[device.StartStopper](m))

	got, ok := Device[*fakeDevice](m, 1)
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = Device[*fakeDevice](m, 2)
	assert.False(t, ok)

	assert.True(t, m.RemoveDevice(ctx, a))
	assert.False(t, m.RemoveDevice(ctx, a))
	assert.Equal(t, []*fakeDevice{b}, Devices[*fakeDevice](m))
}

// The device set only changes under the master lock, so a lifecycle pass or
// playback holding the lock sees a stable set of devices.
func TestDeviceRegistryWaitsForMasterLock(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	held := make(chan struct{})
	release := make(chan struct{})
	holder := make(chan error, 1)
	go func() {
		holder <- m.Lock(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	d := newFakeDevice("late", true)
	added := make(chan error, 1)
	go func() { added <- m.AddDevice(context.Background(), 0, d) }()

	select {
	case err := <-added:
		t.Fatalf("device added while the lock was held: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, NumberOfDevices[*fakeDevice](m))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, m.RemoveDevice(ctx, d), "removal gives up when ctx ends")

	close(release)
	require.NoError(t, testutil.WaitForChannel(t, holder, testutil.ShortTestTimeout, "holder did not finish"))
	require.NoError(t, testutil.WaitForChannel(t, added, testutil.ShortTestTimeout, "device was never added"))
	assert.Equal(t, 1, NumberOfDevices[*fakeDevice](m))

	require.NoError(t, m.Lock(context.Background(), func(ctx context.Context) error {
		return m.AddDevice(ctx, 1, newFakeDevice("nested", true))
	}), "registration inside Lock reuses the held lock")
	assert.Equal(t, 2, NumberOfDevices[*fakeDevice](m))
}

func TestLifecycleContinuesAfterFailures(t *testing.T) {
	t.Parallel()

	metrics := newRecordingMetrics()
	m := newTestMicroscope(t, Options{Metrics: metrics})
	calls := &callLog{}
	a := newFakeDevice("a", true)
	a.calls = calls
	a.openResult = false
	b := newFakeDevice("b", true)
	b.calls = calls
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, a))
	require.NoError(t, m.AddDevice(ctx, 1, b))

	assert.False(t, m.Open(ctx))
	assert.True(t, m.Start(ctx))
	assert.True(t, m.Pipeline().IsStarted())
	assert.True(t, m.Stop(ctx))
	assert.True(t, m.Close(ctx))
	assert.False(t, m.Pipeline().IsStarted())

	assert.Equal(t, []string{
		"open a", "open b",
		"start a", "start b",
		"stop b", "stop a",
		"close b", "close a",
	}, calls.get())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 2, metrics.lifecycle[OperationOpen], "pipeline and b opened")
	assert.Equal(t, 3, metrics.lifecycle[OperationStart])
}

func TestLifecycleHonoursContext(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.Lock(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	assert.False(t, m.Open(ctx))
}

func TestCameraStacksFlowIntoPipeline(t *testing.T) {
	t.Parallel()

	recorder := &recordingRecorder{}
	m := newTestMicroscope(t, Options{Recorder: recorder})
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, newFakeCamera("cam0", 1000)))
	require.NoError(t, m.AddDevice(ctx, 1, newFakeCamera("cam1", 3000)))

	r, err := m.UseRecycler("cameras", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, r.MaxLive())
	assert.Equal(t, 4, r.MaxAvailable())
	cr, ok := m.CameraRecycler(1)
	require.True(t, ok)
	assert.Same(t, r, cr)

	require.True(t, m.Open(ctx))
	require.True(t, m.Start(ctx))

	q, err := m.RequestQueue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.AddCurrentStateToQueue())

	ok, err = m.PlayQueueAndWaitForStacks(ctx, q, testutil.DefaultTestTimeout)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2000), m.LastAcquiredStacksTimestamp())
	assert.Equal(t, int64(1), m.CameraAcquiredVariable(0).Get().Index)

	testutil.WaitForCondition(t, testutil.DefaultTestTimeout, func() bool {
		return len(m.CleanupSink().Stacks()) == 2
	}, "stacks did not reach the cleanup sink")

	recorder.mu.Lock()
	require.Len(t, recorder.playbacks, 1)
	playback := recorder.playbacks[0]
	assert.True(t, playback.Success)
	assert.Equal(t, q.ID(), playback.QueueID)
	assert.Equal(t, 1, playback.TimePoints)
	assert.ElementsMatch(t, []string{"cam0", "cam1"}, playback.Devices)
	require.Len(t, recorder.stacks, 2)
	for _, s := range recorder.stacks {
		assert.Equal(t, playback.ID, s.PlaybackID)
		assert.Equal(t, int64(4), s.Width)
	}
	recorder.mu.Unlock()

	require.True(t, m.Stop(ctx))
	require.True(t, m.Close(ctx))
	require.NoError(t, m.Free())
	assert.Zero(t, r.NumberOfLiveObjects())
}

func TestCameraStackIsReleasedWhenPipelineRefuses(t *testing.T) {
	t.Parallel()

	metrics := newRecordingMetrics()
	m := newTestMicroscope(t, Options{Metrics: metrics})
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, newFakeCamera("cam0", 1)))
	r, err := m.UseRecycler("cameras", 1, 1)
	require.NoError(t, err)

	ok, err := playOnce(t, m, testutil.DefaultTestTimeout)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, metrics.dropCount())
	assert.Zero(t, r.NumberOfLiveObjects())
	require.NoError(t, m.Free())
}

func TestSetCameraRecycler(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, newFakeCamera("cam0", 1)))

	r, err := m.Recyclers().Recycler("custom", 2, 2)
	require.NoError(t, err)
	require.NoError(t, m.SetCameraRecycler(0, r))
	require.ErrorIs(t, m.SetCameraRecycler(3, r), ErrNoSuchCamera)

	got, ok := m.CameraRecycler(0)
	require.True(t, ok)
	assert.Same(t, r, got)
	_, ok = m.CameraRecycler(1)
	assert.False(t, ok)

	assert.True(t, m.ClearRecycler("custom"))
	assert.False(t, m.ClearRecycler("missing"))
	assert.NotNil(t, m.CameraStackVariable(0))
	assert.Nil(t, m.CameraStackVariable(1))
}

func TestStageHelpers(t *testing.T) {
	t.Parallel()

	m := newTestMicroscope(t, Options{})
	assert.Nil(t, m.MainStage())
	assert.False(t, m.SetStageX(1))
	assert.Zero(t, m.StageX())

	ctx := context.Background()
	require.NoError(t, m.AddDevice(ctx, 0, newFakeStage()))
	require.NotNil(t, m.MainStage())
	assert.True(t, m.SetStageX(1))
	assert.True(t, m.SetStageY(2))
	assert.True(t, m.SetStageZ(12.5))
	assert.True(t, m.SetStageR(90))
	assert.InDelta(t, 1, m.StageX(), 0)
	assert.InDelta(t, 2, m.StageY(), 0)
	assert.InDelta(t, 12.5, m.StageZ(), 0)
	assert.InDelta(t, 90, m.StageR(), 0)

	assert.False(t, m.IsSimulation())
	m.SetSimulation(true)
	assert.True(t, m.IsSimulation())
}

func TestCameraPixelSizeVariable(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Cameras.PixelSizeNm = []float64{406, 300}
	m := newTestMicroscope(t, Options{Settings: settings})

	assert.InDelta(t, 406, m.CameraPixelSizeVariable(0).Get(), 0)
	assert.InDelta(t, 300, m.CameraPixelSizeVariable(2).Get(), 0, "last value repeats")
	assert.Same(t, m.CameraPixelSizeVariable(1), m.CameraPixelSizeVariable(1))
}
