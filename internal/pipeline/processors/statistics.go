// Package processors provides stack processors for the pipeline.
package processors

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tphakala/lightsheet-go/internal/pipeline"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// Stats summarizes the voxel intensities of one stack.
type Stats struct {
	Index   int64
	Channel int
	Voxels  int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
}

// Statistics publishes intensity statistics of every stack and passes the
// stack through unchanged.
type Statistics struct {
	*pipeline.Base
	output *variable.Variable[Stats]
	values sync.Pool
}

// NewStatistics returns a statistics processor.
func NewStatistics(name string) *Statistics {
	return &Statistics{
		Base:   pipeline.NewBase(name),
		output: variable.New(name+".stats", Stats{}),
	}
}

// StatsVariable is set with the statistics of every processed stack.
func (p *Statistics) StatsVariable() *variable.Variable[Stats] {
	return p.output
}

// Process computes the statistics of s.
func (p *Statistics) Process(_ context.Context, s *stack.Stack, _ *stack.Recycler) (*stack.Stack, error) {
	p.output.Set(p.compute(s))
	return s, nil
}

func (p *Statistics) compute(s *stack.Stack) Stats {
	values := p.valuesOf(s)
	defer p.values.Put(&values)

	st := Stats{Index: s.Index(), Channel: s.Channel(), Voxels: len(values)}
	if len(values) == 0 {
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(values, nil)
	st.Min = floats.Min(values)
	st.Max = floats.Max(values)
	return st
}

// valuesOf converts the voxels of s to float64 in a pooled buffer.
func (p *Statistics) valuesOf(s *stack.Stack) []float64 {
	n := int(s.Width() * s.Height() * s.Depth())
	var values []float64
	if pooled, ok := p.values.Get().(*[]float64); ok && cap(*pooled) >= n {
		values = (*pooled)[:n]
	} else {
		values = make([]float64, n)
	}

	if s.BytesPerVoxel() == 2 {
		for i, v := range s.Uint16s() {
			values[i] = float64(v)
		}
		return values
	}

	data := s.Bytes()
	bpv := int(s.BytesPerVoxel())
	for i := range n {
		values[i] = float64(data[i*bpv])
	}
	return values
}
