package sim

import (
	"math"

	"github.com/tphakala/lightsheet-go/internal/stack"
)

// Camera image patterns.
const (
	PatternFractal = "fractal"
	PatternSinus   = "sinus"
	PatternSource  = "source"
)

type patternFunc func(x, y, z, index int64, w, h int64) uint16

// fractal is a Sierpinski carpet like xor pattern drifting with the index.
func fractal(x, y, z, index, _, _ int64) uint16 {
	return uint16(((x + index) ^ y ^ (z * 7)) * 37)
}

// sinus is a horizontal wave whose phase advances with the index.
func sinus(x, _, z, index, w, _ int64) uint16 {
	phase := 2 * math.Pi * (float64(x)/float64(max(w, 1)) + float64(index+z)/16)
	return uint16(2000 + 1000*math.Sin(phase))
}

// fillStack writes fn into every voxel of s. Byte voxels keep the high byte.
func fillStack(s *stack.Stack, index int64, fn patternFunc) {
	w, h, d := s.Width(), s.Height(), s.Depth()
	if s.BytesPerVoxel() == 2 {
		voxels := s.Uint16s()
		for z := range d {
			for y := range h {
				row := voxels[(z*h+y)*w : (z*h+y+1)*w]
				for x := range w {
					row[x] = fn(x, y, z, index, w, h)
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
				data[((z*h+y)*w+x)*bpv] = byte(fn(x, y, z, index, w, h) >> 8)
			}
		}
	}
}
