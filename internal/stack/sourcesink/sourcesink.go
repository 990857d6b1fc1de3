// Package sourcesink defines where stacks come from when not acquired by a
// camera and where they go when persisted.
package sourcesink

import (
	"context"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/stack"
)

// Source provides indexed stacks. The returned stack is owned by the caller.
type Source interface {
	NumberOfStacks() int64
	Stack(ctx context.Context, index int64) (*stack.Stack, error)
}

// Sink persists stacks. The caller keeps ownership of the stack.
type Sink interface {
	AppendStack(s *stack.Stack) error
}

var (
	// ErrIndexOutOfRange is returned for stack indices a source does not hold.
	ErrIndexOutOfRange = errors.New(errors.NewStd("stack index out of range")).
		Component("stack.sourcesink").
		Category(errors.CategoryNotFound).
		Build()

	// ErrClosed is returned after Close.
	ErrClosed = errors.New(errors.NewStd("source or sink closed")).
		Component("stack.sourcesink").
		Category(errors.CategoryState).
		Build()
)
