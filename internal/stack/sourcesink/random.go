package sourcesink

import (
	"context"
	"time"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/stack"
)

// RandomSource synthesizes stacks whose voxel (x, y, z) of stack i holds
// i + (x ^ y ^ z), truncated to the voxel width.
type RandomSource struct {
	recycler *stack.Recycler
	request  stack.Request
	count    int64
	timeout  time.Duration
}

// NewRandomSource returns a source of count stacks shaped like req.
func NewRandomSource(r *stack.Recycler, req stack.Request, count int64, timeout time.Duration) *RandomSource {
	return &RandomSource{recycler: r, request: req, count: count, timeout: timeout}
}

// NumberOfStacks returns the number of stacks the source provides.
func (rs *RandomSource) NumberOfStacks() int64 {
	return rs.count
}

// Stack generates stack index.
func (rs *RandomSource) Stack(ctx context.Context, index int64) (*stack.Stack, error) {
	if index < 0 || index >= rs.count {
		return nil, errors.New(ErrIndexOutOfRange).Context("index", index).Context("count", rs.count).Build()
	}

	s, err := rs.recycler.GetOrWait(ctx, rs.timeout, rs.request)
	if err != nil {
		return nil, err
	}

	FillPattern(s, index)
	s.SetIndex(index)
	s.SetTimestampNanos(time.Now().UnixNano())
	return s, nil
}

// FillPattern writes the RandomSource pattern for index into s.
func FillPattern(s *stack.Stack, index int64) {
	w, h, d := s.Width(), s.Height(), s.Depth()
	if s.BytesPerVoxel() == 2 {
		voxels := s.Uint16s()
		for z := range d {
			for y := range h {
				row := voxels[(z*h+y)*w : (z*h+y+1)*w]
				for x := range w {
					row[x] = uint16(index + (x ^ y ^ z))
				}
			}
		}
		return
	}

	data := s.Bytes()
	bpv := s.BytesPerVoxel()
	for z := range d {
		for y := range h {
			for x := range w {
				offset := ((z*h+y)*w + x) * bpv
				data[offset] = byte(index + (x ^ y ^ z))
			}
		}
	}
}
