package stack

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecycler(t *testing.T, maxLive, maxAvailable int) *Recycler {
	t.Helper()
	r, err := NewRecycler(t.Name(), maxLive, maxAvailable)
	require.NoError(t, err)
	return r
}

func TestFactoryCreatesZeroedStack(t *testing.T) {
	t.Parallel()

	s, err := OffHeapFactory{}.Create(NewRequest(4, 3, 2))
	require.NoError(t, err)
	defer s.Free()

	assert.Equal(t, int64(4*3*2*2), s.SizeInBytes())
	assert.Equal(t, [3]int64{4, 3, 2}, s.Dimensions())
	assert.Equal(t, DefaultMetadata(), s.Metadata())
	assert.Equal(t, int32(1), s.RefCount())
	for _, b := range s.Bytes() {
		require.Zero(t, b)
	}
}

func TestFactoryRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	_, err := OffHeapFactory{}.Create(NewRequest(0, 3, 2))
	require.ErrorIs(t, err, ErrInvalidRequest)
}

// A stack served for a request holds the request and round trips a pattern.
func TestReusedStackRoundTripsPattern(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 4, 4)
	ctx := context.Background()

	requests := []Request{NewRequest(16, 16, 8), NewRequest(8, 8, 4), NewRequest(16, 16, 8), {Width: 5, Height: 7, Depth: 3, BytesPerVoxel: 1}}
	for _, req := range requests {
		s, err := r.GetOrWait(ctx, time.Second, req)
		require.NoError(t, err)
		require.GreaterOrEqual(t, s.SizeInBytes(), req.SizeInBytes())
		assert.Equal(t, req, RequestFrom(s))

		data := s.Bytes()
		require.Len(t, data, int(req.SizeInBytes()))
		for i := range data {
			data[i] = byte(i % 256)
		}
		for i, b := range s.Bytes() {
			require.Equal(t, byte(i%256), b)
		}
		s.Release()
	}
	require.NoError(t, r.Free())
}

func TestPlaneViews(t *testing.T) {
	t.Parallel()

	s, err := OffHeapFactory{}.Create(NewRequest(2, 2, 3))
	require.NoError(t, err)
	defer s.Free()

	for z := range int64(3) {
		plane, err := s.Plane(z)
		require.NoError(t, err)
		require.Len(t, plane, 8)
		plane[0] = byte(z + 1)
	}
	assert.Equal(t, byte(1), s.Bytes()[0])
	assert.Equal(t, byte(2), s.Bytes()[8])
	assert.Equal(t, byte(3), s.Bytes()[16])

	_, err = s.Plane(3)
	require.ErrorIs(t, err, ErrPlaneOutOfRange)
}

func TestUint16sView(t *testing.T) {
	t.Parallel()

	s, err := OffHeapFactory{}.Create(NewRequest(3, 2, 1))
	require.NoError(t, err)
	defer s.Free()

	voxels := s.Uint16s()
	require.Len(t, voxels, 6)
	voxels[5] = 0xBEEF
	assert.Equal(t, uint16(0xBEEF), s.Uint16s()[5])
}

func TestRelabel(t *testing.T) {
	t.Parallel()

	s, err := OffHeapFactory{}.Create(NewRequest(10, 10, 10))
	require.NoError(t, err)
	defer s.Free()

	relabelled, err := FromExisting(s, NewRequest(5, 5, 5))
	require.NoError(t, err)
	assert.Same(t, s, relabelled)
	assert.Equal(t, int64(5*5*5*2), int64(len(s.Bytes())))
	assert.Equal(t, int64(10*10*10*2), s.SizeInBytes(), "capacity is unchanged")

	err = s.Relabel(NewRequest(20, 20, 20))
	require.ErrorIs(t, err, ErrRequestTooLarge)
	assert.Equal(t, NewRequest(5, 5, 5), s.Request())
}

func TestAccessAfterFreePanics(t *testing.T) {
	t.Parallel()

	s, err := OffHeapFactory{}.Create(NewRequest(2, 2, 2))
	require.NoError(t, err)
	s.Free()
	s.Free()

	assert.True(t, s.IsFree())
	assert.Panics(t, func() { _ = s.Bytes() })
	assert.Panics(t, func() { _, _ = s.Plane(0) })
	assert.Panics(t, func() { s.Acquire() })
}

func TestReferenceCountingReturnsToRecycler(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 2, 2)
	s, err := r.GetOrWait(context.Background(), 0, NewRequest(4, 4, 4))
	require.NoError(t, err)

	s.Acquire()
	assert.Equal(t, int32(2), s.RefCount())

	s.Release()
	assert.Equal(t, 1, r.NumberOfLiveObjects(), "still referenced")

	s.Release()
	assert.Zero(t, r.NumberOfLiveObjects())
	assert.Equal(t, 1, r.NumberOfAvailableObjects())

	s.Release()
	assert.Equal(t, 1, r.NumberOfAvailableObjects(), "extra release is ignored")
	assert.Zero(t, s.RefCount())
	assert.Panics(t, func() { s.Acquire() }, "released stacks cannot be acquired")
}

func TestRecycleResetsMetadata(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 1, 1)
	ctx := context.Background()

	s, err := r.GetOrWait(ctx, 0, NewRequest(4, 4, 1))
	require.NoError(t, err)
	s.SetIndex(7)
	s.SetChannel(1)
	s.SetTimestampNanos(99)
	s.Release()

	again, err := r.GetOrWait(ctx, 0, NewRequest(4, 4, 1))
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, DefaultMetadata(), again.Metadata())
	again.Release()
}

// One hundred sequential get/release pairs never exceed one live stack.
func TestSequentialAcquisitionUsesOneStack(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 10, 10)
	for range 100 {
		s, err := r.GetOrWait(context.Background(), 0, NewRequest(12, 13, 14))
		require.NoError(t, err)
		require.LessOrEqual(t, r.NumberOfLiveObjects(), 1)
		s.Release()
	}
	assert.Equal(t, 1, r.NumberOfAvailableObjects())
	require.NoError(t, r.Free())
}

// After releasing everything and freeing, no live stacks remain and every
// stack was unmapped.
func TestPoolDrain(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 8, 8)
	var stacks []*Stack
	for i := range 8 {
		s, err := r.GetOrWait(context.Background(), 0, NewRequest(32, 32, int64(i+1)))
		require.NoError(t, err)
		stacks = append(stacks, s)
	}
	assert.Positive(t, r.LiveMemoryBytes())

	for _, s := range stacks {
		s.Release()
	}
	require.NoError(t, r.Free())

	assert.Zero(t, r.NumberOfLiveObjects())
	assert.Zero(t, r.LiveMemoryBytes())
	assert.Zero(t, r.AvailableMemoryBytes())
	for _, s := range stacks {
		assert.True(t, s.IsFree())
	}
}

func TestHandleReleasesExactlyOnce(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 1, 1)
	h, err := Get(context.Background(), r, 0, NewRequest(2, 2, 2))
	require.NoError(t, err)
	require.NotNil(t, h.Stack())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Nil(t, h.Stack())
	assert.Zero(t, r.NumberOfLiveObjects())

	_, err = h.Take()
	require.ErrorIs(t, err, ErrHandleEmpty)
}

func TestHandleTakeTransfersOwnership(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 1, 1)
	h, err := Get(context.Background(), r, 0, NewRequest(2, 2, 2))
	require.NoError(t, err)

	s, err := h.Take()
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, 1, r.NumberOfLiveObjects(), "closing an empty handle does not release")

	s.Release()
	assert.Zero(t, r.NumberOfLiveObjects())
}

func TestWithReleasesOnEveryPath(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 1, 1)
	req := NewRequest(2, 2, 2)

	require.NoError(t, With(context.Background(), r, 0, req, func(s *Stack) error {
		s.Bytes()[0] = 1
		return nil
	}))
	assert.Zero(t, r.NumberOfLiveObjects())

	boom := fmt.Errorf("processing failed")
	err := With(context.Background(), r, 0, req, func(*Stack) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Zero(t, r.NumberOfLiveObjects())

	assert.Panics(t, func() {
		_ = With(context.Background(), r, 0, req, func(*Stack) error { panic("device fault") })
	})
	assert.Zero(t, r.NumberOfLiveObjects())
}

func TestSystemMemoryGuard(t *testing.T) {
	t.Parallel()

	guard := NewSystemMemoryGuard(10)
	guard.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 1000, Available: 200}, nil
	}

	assert.True(t, guard.AllowAllocation(50), "150 of 1000 remain")
	assert.False(t, guard.AllowAllocation(150), "50 of 1000 remain")

	guard.virtualMemory = func() (*mem.VirtualMemoryStat, error) { return nil, fmt.Errorf("unavailable") }
	assert.True(t, guard.AllowAllocation(1<<40), "unknown memory state allows allocation")

	assert.True(t, NewSystemMemoryGuard(0).AllowAllocation(1<<40))
}

func TestRecyclerManager(t *testing.T) {
	t.Parallel()

	m := NewRecyclerManager(ManagerOptions{})
	a, err := m.Recycler("camera0", 4, 2)
	require.NoError(t, err)
	again, err := m.Recycler("camera0", 99, 99)
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 4, again.MaxLive())

	_, err = m.Recycler("camera1", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"camera0", "camera1"}, m.Names())

	s, err := a.GetOrWait(context.Background(), 0, NewRequest(4, 4, 4))
	require.NoError(t, err)
	s.Release()
	assert.Equal(t, 1, a.NumberOfAvailableObjects())

	assert.True(t, m.Clear("camera0"))
	assert.False(t, m.Clear("missing"))
	assert.Zero(t, a.NumberOfAvailableObjects())

	held, err := a.GetOrWait(context.Background(), 0, NewRequest(4, 4, 4))
	require.NoError(t, err)
	require.Error(t, m.Free())
	held.Release()
	require.NoError(t, m.Free())
}
