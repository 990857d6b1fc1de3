// Package stack provides reference counted camera stacks backed by memory
// outside the Go heap, their factory and recycler wiring.
package stack

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/recycler"
)

// Metadata is written by the producer before a stack is published and read
// by consumers afterwards.
type Metadata struct {
	Index                  int64
	TimestampNanos         int64
	Channel                int
	NumberOfImagesPerPlane int
	VoxelSize              [3]float64 // x, y, z
}

// DefaultMetadata returns zeroed metadata with unit voxel size.
func DefaultMetadata() Metadata {
	return Metadata{NumberOfImagesPerPlane: 1, VoxelSize: [3]float64{1, 1, 1}}
}

// Stack is one camera frame or volume. It is handed out with a reference
// count of one; the holder calls Release exactly once per reference. When the
// count reaches zero the stack returns to the recycler it came from.
type Stack struct {
	mem    []byte
	mapped bool
	req    Request
	meta   Metadata

	refs  atomic.Int32
	freed atomic.Bool
	owner recycler.Owner[*Stack]
}

func newStack(mem []byte, mapped bool, req Request) *Stack {
	s := &Stack{mem: mem, mapped: mapped, req: req, meta: DefaultMetadata()}
	s.refs.Store(1)
	return s
}

// FromExisting relabels existing to req without reallocating and returns it.
func FromExisting(existing *Stack, req Request) (*Stack, error) {
	if err := existing.Relabel(req); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Stack) mustNotBeFree() {
	if s.freed.Load() {
		panic("stack: access after free")
	}
}

// Acquire adds a reference for an additional holder.
func (s *Stack) Acquire() *Stack {
	s.mustNotBeFree()
	if s.refs.Add(1) <= 1 {
		panic("stack: acquire of released stack")
	}
	return s
}

// Release drops one reference. Releases beyond the last reference are ignored.
func (s *Stack) Release() {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return
		}
		if s.refs.CompareAndSwap(n, n-1) {
			if n == 1 && s.owner != nil {
				s.owner.Release(s)
			}
			return
		}
	}
}

// RefCount returns the current number of references.
func (s *Stack) RefCount() int32 {
	return s.refs.Load()
}

// Request returns the logical shape.
func (s *Stack) Request() Request {
	return s.req
}

// Relabel changes the logical shape without reallocating.
func (s *Stack) Relabel(req Request) error {
	s.mustNotBeFree()
	if !req.Valid() {
		return errors.New(ErrInvalidRequest).Context("request", req.String()).Build()
	}
	if !s.Fits(req) {
		return errors.New(ErrRequestTooLarge).
			Context("request", req.String()).
			Context("capacity_bytes", s.SizeInBytes()).
			Build()
	}
	s.req = req
	return nil
}

// Bytes returns a view of the logical voxels. The view must not be used after Release.
func (s *Stack) Bytes() []byte {
	s.mustNotBeFree()
	return s.mem[:s.req.SizeInBytes()]
}

// Plane returns a view of Z plane z.
func (s *Stack) Plane(z int64) ([]byte, error) {
	s.mustNotBeFree()
	if z < 0 || z >= s.req.Depth {
		return nil, errors.New(ErrPlaneOutOfRange).
			Context("plane", z).
			Context("depth", s.req.Depth).
			Build()
	}
	planeSize := s.req.PlaneSizeInBytes()
	return s.mem[z*planeSize : (z+1)*planeSize], nil
}

// Uint16s returns the logical voxels as native endian 16 bit values.
// It panics for stacks that are not 16 bit.
func (s *Stack) Uint16s() []uint16 {
	s.mustNotBeFree()
	if s.req.BytesPerVoxel != 2 {
		panic(fmt.Sprintf("stack: Uint16s on %d byte voxels", s.req.BytesPerVoxel))
	}
	n := s.req.Width * s.req.Height * s.req.Depth
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&s.mem[0])), n)
}

// SizeInBytes returns the physical capacity, which is at least the logical size.
func (s *Stack) SizeInBytes() int64 {
	return int64(len(s.mem))
}

// Width returns the logical width in voxels.
func (s *Stack) Width() int64 { return s.req.Width }

// Height returns the logical height in voxels.
func (s *Stack) Height() int64 { return s.req.Height }

// Depth returns the logical depth in planes.
func (s *Stack) Depth() int64 { return s.req.Depth }

// BytesPerVoxel returns the voxel size in bytes.
func (s *Stack) BytesPerVoxel() int64 { return s.req.BytesPerVoxel }

// Dimensions returns width, height and depth.
func (s *Stack) Dimensions() [3]int64 {
	return [3]int64{s.req.Width, s.req.Height, s.req.Depth}
}

// Metadata returns a copy of the metadata.
func (s *Stack) Metadata() Metadata { return s.meta }

// SetMetadata replaces the metadata.
func (s *Stack) SetMetadata(m Metadata) { s.meta = m }

// Index returns the acquisition index.
func (s *Stack) Index() int64 { return s.meta.Index }

// SetIndex sets the acquisition index.
func (s *Stack) SetIndex(i int64) { s.meta.Index = i }

// TimestampNanos returns the acquisition timestamp.
func (s *Stack) TimestampNanos() int64 { return s.meta.TimestampNanos }

// SetTimestampNanos sets the acquisition timestamp.
func (s *Stack) SetTimestampNanos(t int64) { s.meta.TimestampNanos = t }

// Channel returns the acquisition channel.
func (s *Stack) Channel() int { return s.meta.Channel }

// SetChannel sets the acquisition channel.
func (s *Stack) SetChannel(c int) { s.meta.Channel = c }

// Fits reports whether the memory of s can hold req.
func (s *Stack) Fits(req Request) bool {
	return req.Valid() && s.SizeInBytes() >= req.SizeInBytes()
}

// Recycle relabels s for a new holder, resets metadata and the reference count.
func (s *Stack) Recycle(req Request) {
	s.mustNotBeFree()
	s.req = req
	s.meta = DefaultMetadata()
	s.refs.Store(1)
}

// Attach records the recycler s returns to on its last release.
func (s *Stack) Attach(owner recycler.Owner[*Stack]) {
	s.owner = owner
}

// Free unmaps the memory. Any later access panics.
func (s *Stack) Free() {
	if s.freed.Swap(true) {
		return
	}
	_ = freeMemory(s.mem, s.mapped)
	s.mem = nil
}

// IsFree reports whether Free was called.
func (s *Stack) IsFree() bool {
	return s.freed.Load()
}

func (s *Stack) String() string {
	return fmt.Sprintf("Stack[%s index=%d channel=%d]", s.req, s.meta.Index, s.meta.Channel)
}
