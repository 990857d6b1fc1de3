// Package future provides one-shot results completed by device playback
// goroutines and an aggregate of boolean results.
package future

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/lightsheet-go/internal/errors"
)

// ErrTimeout is returned when a result is not available before the deadline.
var ErrTimeout = errors.New(errors.NewStd("future: timed out waiting for result")).
	Component("future").
	Category(errors.CategoryTimeout).
	Build()

// Future is a result that becomes available exactly once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New returns an incomplete future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already holding value.
func Completed[T any](value T) *Future[T] {
	f := New[T]()
	f.Complete(value)
	return f
}

// Failed returns a future already holding err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

// Go runs fn on a new goroutine and completes the returned future with its result.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		value, err := fn(ctx)
		f.finish(value, err)
	}()
	return f
}

func (f *Future[T]) finish(value T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Complete sets the result. Only the first Complete or Fail takes effect.
func (f *Future[T]) Complete(value T) bool {
	return f.finish(value, nil)
}

// Fail sets an error result. Only the first Complete or Fail takes effect.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	if err == nil {
		err = errors.NewStd("future: failed without error")
	}
	return f.finish(zero, err)
}

// Done returns a channel closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the result is available.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Cancel does nothing and reports false. Device playback cannot be interrupted
// once started; callers stop waiting instead.
func (f *Future[T]) Cancel() bool {
	return false
}

// Get waits for the result or for ctx to end.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, errors.New(ErrTimeout).Context("cause", ctx.Err().Error()).Build()
		}
		return zero, errors.New(ctx.Err()).
			Component("future").
			Category(errors.CategoryCancellation).
			Build()
	}
}

// GetTimeout waits up to timeout for the result. A negative timeout waits forever.
func (f *Future[T]) GetTimeout(timeout time.Duration) (T, error) {
	if timeout < 0 {
		return f.Get(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.Get(ctx)
}
