package processors

import (
	"context"
	"time"

	"github.com/tphakala/lightsheet-go/internal/pipeline"
	"github.com/tphakala/lightsheet-go/internal/stack"
)

// MaxProjection replaces each stack by its maximum intensity projection
// along Z, a depth one stack taken from the processor's recycler.
type MaxProjection struct {
	*pipeline.Base
	timeout time.Duration
}

// NewMaxProjection returns a projection processor waiting up to timeout for
// an output stack.
func NewMaxProjection(name string, timeout time.Duration) *MaxProjection {
	return &MaxProjection{Base: pipeline.NewBase(name), timeout: timeout}
}

// Process projects s and releases it.
func (p *MaxProjection) Process(ctx context.Context, s *stack.Stack, r *stack.Recycler) (*stack.Stack, error) {
	req := stack.Request{Width: s.Width(), Height: s.Height(), Depth: 1, BytesPerVoxel: s.BytesPerVoxel()}
	out, err := r.GetOrWait(ctx, p.timeout, req)
	if err != nil {
		return nil, err
	}

	if s.BytesPerVoxel() == 2 {
		projectUint16(out.Uint16s(), s.Uint16s(), int(s.Width()*s.Height()))
	} else {
		projectBytes(out.Bytes(), s)
	}

	meta := s.Metadata()
	meta.VoxelSize[2] *= float64(s.Depth())
	out.SetMetadata(meta)
	s.Release()
	return out, nil
}

func projectUint16(dst, src []uint16, plane int) {
	copy(dst, src[:plane])
	for offset := plane; offset < len(src); offset += plane {
		for i, v := range src[offset : offset+plane] {
			if v > dst[i] {
				dst[i] = v
			}
		}
	}
}

// projectBytes keeps the larger voxel per position, reading voxels as
// little-endian unsigned integers of the stack's voxel width.
func projectBytes(dst []byte, s *stack.Stack) {
	first, _ := s.Plane(0)
	copy(dst, first)
	bpv := int(s.BytesPerVoxel())
	for z := int64(1); z < s.Depth(); z++ {
		plane, _ := s.Plane(z)
		for i := 0; i+bpv <= len(plane); i += bpv {
			if greaterLE(plane[i:i+bpv], dst[i:i+bpv]) {
				copy(dst[i:i+bpv], plane[i:i+bpv])
			}
		}
	}
}

func greaterLE(a, b []byte) bool {
	for k := len(a) - 1; k >= 0; k-- {
		if a[k] != b[k] {
			return a[k] > b[k]
		}
	}
	return false
}
