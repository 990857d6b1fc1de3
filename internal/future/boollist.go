package future

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/lightsheet-go/internal/errors"
)

type namedFuture struct {
	name   string
	future *Future[bool]
}

// BoolList aggregates boolean futures. Its result is true only when every
// future completes true within the shared deadline.
type BoolList struct {
	mu      sync.Mutex
	futures []namedFuture
}

// NewBoolList returns an empty list.
func NewBoolList() *BoolList {
	return &BoolList{}
}

// Add appends f under name. A nil future is ignored: the device is excluded
// from aggregation.
func (l *BoolList) Add(name string, f *Future[bool]) {
	if f == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.futures = append(l.futures, namedFuture{name: name, future: f})
}

// Len returns the number of aggregated futures.
func (l *BoolList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.futures)
}

// Names returns the names of the aggregated futures in insertion order.
func (l *BoolList) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.futures))
	for i, nf := range l.futures {
		names[i] = nf.name
	}
	return names
}

// Get waits for all futures, sharing one deadline of timeout, and returns the
// AND of their results. A negative timeout only honours ctx.
//
// On timeout the result is false with an error wrapping ErrTimeout; the
// underlying device work is not cancelled. A failed future yields false and
// its error. An empty list yields true immediately.
func (l *BoolList) Get(ctx context.Context, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	futures := make([]namedFuture, len(l.futures))
	copy(futures, l.futures)
	l.mu.Unlock()

	if len(futures) == 0 {
		return true, nil
	}

	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := true
	var errs []error
	for _, nf := range futures {
		ok, err := nf.future.Get(ctx)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return false, errors.New(err).
					Context("device", nf.name).
					Context("timeout", timeout.String()).
					Build()
			}
			if ctx.Err() != nil {
				return false, err
			}
			errs = append(errs, errors.Newf("%s: %w", nf.name, err).
				Component("future").
				Category(errors.CategoryDevice).
				Build())
			result = false
			continue
		}
		result = result && ok
	}

	return result, errors.Join(errs...)
}
