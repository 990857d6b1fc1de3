package microscope

import (
	"context"
	"sync/atomic"

	"github.com/tphakala/lightsheet-go/internal/errors"
)

// lockKey scopes a lock token to one microscope.
type lockKey struct {
	m *Microscope
}

// lockToken marks a context as running under the master lock. It is only
// honoured while the holder is inside Lock.
type lockToken struct {
	held atomic.Bool
}

// holdsLock reports whether ctx was handed out by Lock and the lock is still held.
func (m *Microscope) holdsLock(ctx context.Context) bool {
	token, ok := ctx.Value(lockKey{m}).(*lockToken)
	return ok && token.held.Load()
}

// Lock runs fn holding the master lock. Contexts passed to fn carry a lock
// token, so methods called with them do not acquire the lock again.
// Acquisition gives up when ctx ends. The token must not be used by
// goroutines that outlive fn.
func (m *Microscope) Lock(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.holdsLock(ctx) {
		return fn(ctx)
	}

	select {
	case m.lock <- struct{}{}:
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component(ComponentMicroscope).
			Category(errors.CategoryCancellation).
			Context("microscope", m.name).
			Context("operation", "acquire_lock").
			Build()
	}

	token := &lockToken{}
	token.held.Store(true)
	defer func() {
		token.held.Store(false)
		<-m.lock
	}()

	return fn(context.WithValue(ctx, lockKey{m}, token))
}
