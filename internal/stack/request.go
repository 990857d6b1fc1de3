package stack

import "fmt"

// DefaultBytesPerVoxel is used by NewRequest: 16 bit camera pixels.
const DefaultBytesPerVoxel = 2

// Request describes the logical shape of a stack. A stack can serve a request
// when its memory is at least the request size; a larger buffer may be reused.
type Request struct {
	Width         int64
	Height        int64
	Depth         int64
	BytesPerVoxel int64
}

// NewRequest returns a request for a 16 bit stack.
func NewRequest(width, height, depth int64) Request {
	return Request{Width: width, Height: height, Depth: depth, BytesPerVoxel: DefaultBytesPerVoxel}
}

// RequestFrom returns the request describing the logical shape of s.
func RequestFrom(s *Stack) Request {
	return s.Request()
}

// SizeInBytes returns width*height*depth*bytesPerVoxel.
func (r Request) SizeInBytes() int64 {
	return r.Width * r.Height * r.Depth * r.BytesPerVoxel
}

// PlaneSizeInBytes returns the size of one Z plane.
func (r Request) PlaneSizeInBytes() int64 {
	return r.Width * r.Height * r.BytesPerVoxel
}

// Valid reports whether all dimensions are positive.
func (r Request) Valid() bool {
	return r.Width > 0 && r.Height > 0 && r.Depth > 0 && r.BytesPerVoxel > 0
}

func (r Request) String() string {
	return fmt.Sprintf("%dx%dx%d@%dB", r.Width, r.Height, r.Depth, r.BytesPerVoxel)
}
