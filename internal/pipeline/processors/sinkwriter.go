package processors

import (
	"context"
	"sync/atomic"

	"github.com/tphakala/lightsheet-go/internal/pipeline"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/stack/sourcesink"
)

// SinkWriter appends every stack to a sink and passes it through.
type SinkWriter struct {
	*pipeline.Base
	sink    sourcesink.Sink
	written atomic.Int64
}

// NewSinkWriter returns a processor writing to sink.
func NewSinkWriter(name string, sink sourcesink.Sink) *SinkWriter {
	return &SinkWriter{Base: pipeline.NewBase(name), sink: sink}
}

// Process appends s to the sink.
func (p *SinkWriter) Process(_ context.Context, s *stack.Stack, _ *stack.Recycler) (*stack.Stack, error) {
	if err := p.sink.AppendStack(s); err != nil {
		return nil, err
	}
	p.written.Add(1)
	return s, nil
}

// Written returns the number of stacks appended.
func (p *SinkWriter) Written() int64 {
	return p.written.Load()
}
