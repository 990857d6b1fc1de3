package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/tphakala/lightsheet-go/internal/stack"
)

// Processor transforms stacks inside a pipeline.
//
// Process owns its input. Returning the input passes the reference through.
// Returning a different stack means the processor released or kept the
// input, and the returned stack is typically taken from r, the recycler the
// pipeline dedicates to this processor. Returning nil drops the stack after
// the processor released the input. On error the processor must not have
// released the input: the pipeline does.
type Processor interface {
	Name() string
	Process(ctx context.Context, s *stack.Stack, r *stack.Recycler) (*stack.Stack, error)
	IsActive() bool
	SetActive(active bool)
}

// Base carries the name and active flag of a processor. Embed *Base.
type Base struct {
	name     string
	inactive atomic.Bool
}

// NewBase returns an active Base.
func NewBase(name string) *Base {
	return &Base{name: name}
}

// Name returns the processor name.
func (b *Base) Name() string { return b.name }

// IsActive reports whether the processor runs. Inactive processors pass
// stacks through untouched.
func (b *Base) IsActive() bool { return !b.inactive.Load() }

// SetActive switches the processor on or off.
func (b *Base) SetActive(active bool) { b.inactive.Store(!active) }

// Func adapts a function to Processor.
type Func struct {
	*Base
	fn func(ctx context.Context, s *stack.Stack, r *stack.Recycler) (*stack.Stack, error)
}

// NewFunc returns a processor running fn.
func NewFunc(name string, fn func(ctx context.Context, s *stack.Stack, r *stack.Recycler) (*stack.Stack, error)) *Func {
	return &Func{Base: NewBase(name), fn: fn}
}

// Process runs the wrapped function.
func (f *Func) Process(ctx context.Context, s *stack.Stack, r *stack.Recycler) (*stack.Stack, error) {
	return f.fn(ctx, s, r)
}
