package stack

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tphakala/lightsheet-go/internal/errors"
)

// Handle owns one reference to a stack and releases it exactly once.
// Ownership can be moved out with Take, after which Close does nothing.
type Handle struct {
	s atomic.Pointer[Stack]
}

// NewHandle wraps a reference the caller already owns.
func NewHandle(s *Stack) *Handle {
	h := &Handle{}
	h.s.Store(s)
	return h
}

// Get obtains a stack from r wrapped in a handle.
func Get(ctx context.Context, r *Recycler, timeout time.Duration, req Request) (*Handle, error) {
	s, err := r.GetOrWait(ctx, timeout, req)
	if err != nil {
		return nil, err
	}
	return NewHandle(s), nil
}

// Stack returns the owned stack, or nil once taken or closed.
func (h *Handle) Stack() *Stack {
	return h.s.Load()
}

// Take moves ownership of the reference to the caller.
func (h *Handle) Take() (*Stack, error) {
	s := h.s.Swap(nil)
	if s == nil {
		return nil, ErrHandleEmpty
	}
	return s, nil
}

// Close releases the reference if the handle still owns it.
func (h *Handle) Close() error {
	if s := h.s.Swap(nil); s != nil {
		s.Release()
	}
	return nil
}

// With obtains a stack, runs fn and releases the stack on every exit path,
// including panics in fn.
func With(ctx context.Context, r *Recycler, timeout time.Duration, req Request, fn func(*Stack) error) error {
	h, err := Get(ctx, r, timeout, req)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := fn(h.Stack()); err != nil {
		return errors.New(err).
			Component("stack").
			Category(errors.CategoryProcessing).
			Context("request", req.String()).
			Build()
	}
	return nil
}
