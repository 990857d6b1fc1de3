package processors

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lightsheet-go/internal/pipeline"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/testutil"
)

func newTestRecycler(t *testing.T, name string) *stack.Recycler {
	t.Helper()
	r, err := stack.NewRecycler(name, 4, 4)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Free()) })
	return r
}

func newFilledStack(t *testing.T, r *stack.Recycler, req stack.Request, fill func(i int) uint16) *stack.Stack {
	t.Helper()
	s, err := r.GetOrWait(context.Background(), time.Second, req)
	require.NoError(t, err)
	for i := range s.Uint16s() {
		s.Uint16s()[i] = fill(i)
	}
	return s
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, t.Name())
	p := NewStatistics("stats")
	s := newFilledStack(t, r, stack.NewRequest(2, 2, 1), func(i int) uint16 { return []uint16{2, 4, 4, 6}[i] })
	s.SetIndex(12)
	s.SetChannel(1)

	out, err := p.Process(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Same(t, s, out, "statistics pass the stack through")

	st := p.StatsVariable().Get()
	assert.Equal(t, int64(12), st.Index)
	assert.Equal(t, 1, st.Channel)
	assert.Equal(t, 4, st.Voxels)
	assert.InDelta(t, 4.0, st.Mean, 1e-9)
	assert.InDelta(t, 1.632993, st.StdDev, 1e-6)
	assert.InDelta(t, 2.0, st.Min, 0)
	assert.InDelta(t, 6.0, st.Max, 0)
	out.Release()
}

func TestStatisticsByteVoxels(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, t.Name())
	s, err := r.GetOrWait(context.Background(), time.Second, stack.Request{Width: 3, Height: 1, Depth: 1, BytesPerVoxel: 1})
	require.NoError(t, err)
	copy(s.Bytes(), []byte{1, 2, 9})

	p := NewStatistics("stats")
	_, err = p.Process(context.Background(), s, nil)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, p.StatsVariable().Get().Max, 0)
	s.Release()
}

func TestMaxProjection(t *testing.T) {
	t.Parallel()

	in := newTestRecycler(t, t.Name()+"/in")
	own := newTestRecycler(t, t.Name()+"/own")

	// Plane z holds value z at voxel z and 1 elsewhere.
	s := newFilledStack(t, in, stack.NewRequest(3, 1, 3), func(i int) uint16 {
		z, x := i/3, i%3
		if x == z {
			return uint16(10 + z)
		}
		return 1
	})
	s.SetIndex(4)

	p := NewMaxProjection("projection", time.Second)
	out, err := p.Process(context.Background(), s, own)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, [3]int64{3, 1, 1}, out.Dimensions())
	assert.Equal(t, []uint16{10, 11, 12}, out.Uint16s())
	assert.Equal(t, int64(4), out.Index())
	assert.InDelta(t, 3.0, out.Metadata().VoxelSize[2], 0)
	assert.Zero(t, in.NumberOfLiveObjects(), "input released")
	assert.Equal(t, 1, own.NumberOfLiveObjects())
}

// Voxels wider than a byte compare as little-endian integers: 0x0100 beats
// 0x00ff although its low byte is smaller.
func TestMaxProjectionComparesWholeVoxels(t *testing.T) {
	t.Parallel()

	le16 := func(vs ...uint16) []byte {
		b := make([]byte, 0, 2*len(vs))
		for _, v := range vs {
			b = binary.LittleEndian.AppendUint16(b, v)
		}
		return b
	}

	in := newTestRecycler(t, t.Name()+"/in")
	s, err := in.GetOrWait(context.Background(), time.Second, stack.NewRequest(3, 1, 2))
	require.NoError(t, err)
	copy(s.Bytes(), append(le16(0x00ff, 0x0200, 7), le16(0x0100, 0x01ff, 9)...))

	dst := make([]byte, 6)
	projectBytes(dst, s)
	assert.Equal(t, le16(0x0100, 0x0200, 9), dst)
	s.Release()

	wide, err := in.GetOrWait(context.Background(), time.Second,
		stack.Request{Width: 2, Height: 1, Depth: 2, BytesPerVoxel: 4})
	require.NoError(t, err)
	planes := binary.LittleEndian.AppendUint32(nil, 0x000000ff)
	planes = binary.LittleEndian.AppendUint32(planes, 0x00010000)
	planes = binary.LittleEndian.AppendUint32(planes, 0x00000100)
	planes = binary.LittleEndian.AppendUint32(planes, 0x0000ffff)
	copy(wide.Bytes(), planes)

	own := newTestRecycler(t, t.Name()+"/own")
	out, err := NewMaxProjection("projection", time.Second).Process(context.Background(), wide, own)
	require.NoError(t, err)
	defer out.Release()

	assert.Equal(t, [3]int64{2, 1, 1}, out.Dimensions())
	assert.Equal(t, uint32(0x00000100), binary.LittleEndian.Uint32(out.Bytes()[0:4]))
	assert.Equal(t, uint32(0x00010000), binary.LittleEndian.Uint32(out.Bytes()[4:8]))
}

func TestMaxProjectionExhaustedRecyclerKeepsInput(t *testing.T) {
	t.Parallel()

	in := newTestRecycler(t, t.Name()+"/in")
	own, err := stack.NewRecycler(t.Name()+"/own", 1, 1)
	require.NoError(t, err)
	held, err := own.GetOrWait(context.Background(), 0, stack.NewRequest(2, 2, 1))
	require.NoError(t, err)

	s := newFilledStack(t, in, stack.NewRequest(2, 2, 2), func(int) uint16 { return 0 })
	_, err = NewMaxProjection("projection", 10*time.Millisecond).Process(context.Background(), s, own)
	require.Error(t, err)
	assert.Equal(t, int32(1), s.RefCount(), "input stays with the caller on error")

	s.Release()
	held.Release()
	require.NoError(t, own.Free())
}

type memorySink struct {
	indices []int64
	fail    bool
}

func (m *memorySink) AppendStack(s *stack.Stack) error {
	if m.fail {
		return errors.New("disk full")
	}
	m.indices = append(m.indices, s.Index())
	return nil
}

func TestSinkWriter(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, t.Name())
	sink := &memorySink{}
	w := NewSinkWriter("writer", sink)

	s := newFilledStack(t, r, stack.NewRequest(1, 1, 1), func(int) uint16 { return 0 })
	s.SetIndex(3)
	out, err := w.Process(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Same(t, s, out)
	assert.Equal(t, []int64{3}, sink.indices)
	assert.Equal(t, int64(1), w.Written())

	sink.fail = true
	_, err = w.Process(context.Background(), s, nil)
	require.Error(t, err)
	assert.Equal(t, int64(1), w.Written())
	s.Release()
}

// Processors run inside a pipeline: statistics, then projection.
func TestProcessorsInPipeline(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, t.Name())
	manager := stack.NewRecyclerManager(stack.ManagerOptions{})

	p := pipeline.New("processors", pipeline.Options{Recyclers: manager})
	stats := NewStatistics("stats")
	require.NoError(t, p.AddStackProcessor(stats, "stats", 1, 1))
	require.NoError(t, p.AddStackProcessor(NewMaxProjection("projection", time.Second), "projection", 2, 2))
	sink := pipeline.NewCleanupSink(p.OutputVariable(), 1)

	require.True(t, p.Start())
	s := newFilledStack(t, r, stack.NewRequest(4, 4, 4), func(i int) uint16 { return uint16(i) })
	s.SetIndex(1)
	require.True(t, p.PassOrFail(s))
	require.True(t, p.WaitToFinish(testutil.DefaultTestTimeout))
	require.True(t, p.Stop())

	last := sink.Last()
	require.NotNil(t, last)
	assert.Equal(t, int64(1), last.Depth())
	assert.Equal(t, uint16(48), last.Uint16s()[0])
	assert.InDelta(t, 63.0, stats.StatsVariable().Get().Max, 0)

	sink.Close()
	require.NoError(t, manager.Free())
}
