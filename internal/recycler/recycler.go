// Package recycler implements a bounded pool of reusable objects keyed by a
// request descriptor. Checked out objects count against a live cap; released
// objects are kept for reuse up to an available cap and freed beyond it.
package recycler

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
)

// Request describes what a caller needs from the pool.
type Request interface {
	SizeInBytes() int64
}

// Owner receives objects whose holders are done with them.
type Owner[T any] interface {
	Release(obj T)
}

// Recyclable is implemented by pooled objects.
type Recyclable[T any, R any] interface {
	comparable
	// SizeInBytes returns the physical capacity of the object.
	SizeInBytes() int64
	// Fits reports whether the object can serve req without reallocation.
	Fits(req R) bool
	// Recycle prepares the object for a new holder of req.
	Recycle(req R)
	// Attach records the recycler the object returns to.
	Attach(owner Owner[T])
	Free()
	IsFree() bool
}

// Factory allocates new objects on pool miss.
type Factory[T any, R any] interface {
	Create(req R) (T, error)
}

// MemoryGuard can refuse allocations, e.g. when system memory runs low.
type MemoryGuard interface {
	AllowAllocation(bytes int64) bool
}

// Get outcomes reported to Metrics.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeTimeout = "timeout"
)

// Metrics receives pool activity. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordGet(recycler, outcome string, wait time.Duration)
	RecordEviction(recycler string)
	UpdatePool(recycler string, live, available int, liveBytes, availableBytes int64)
}

// Options bounds a recycler.
type Options struct {
	MaxLive      int // objects checked out at the same time
	MaxAvailable int // released objects kept for reuse
	MemoryGuard  MemoryGuard
	Metrics      Metrics
	Logger       *slog.Logger
}

// Recycler is a bounded object pool. All methods are safe for concurrent use.
// Its lock is independent of any caller lock; GetOrWait must not be called
// while holding a lock that Release depends on.
type Recycler[T Recyclable[T, R], R Request] struct {
	name    string
	factory Factory[T, R]
	opts    Options
	logger  *slog.Logger

	mu             sync.Mutex
	live           map[T]struct{}
	available      []T
	pending        int // allocations in progress, counted against MaxLive
	liveBytes      int64
	availableBytes int64
	changed        chan struct{} // closed and replaced whenever capacity may have changed
}

// New creates a recycler.
func New[T Recyclable[T, R], R Request](name string, factory Factory[T, R], opts Options) (*Recycler[T, R], error) {
	if opts.MaxLive < 1 || opts.MaxAvailable < 0 {
		return nil, errors.New(ErrInvalidOptions).
			Context("recycler", name).
			Context("max_live", opts.MaxLive).
			Context("max_available", opts.MaxAvailable).
			Build()
	}
	if factory == nil {
		return nil, errors.New(ErrInvalidOptions).Context("recycler", name).Context("reason", "nil factory").Build()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("recycler")
		if logger == nil {
			logger = slog.Default()
		}
	}

	return &Recycler[T, R]{
		name:    name,
		factory: factory,
		opts:    opts,
		logger:  logger.With("component", "recycler", "recycler", name),
		live:    make(map[T]struct{}),
		changed: make(chan struct{}),
	}, nil
}

// Name returns the recycler name.
func (r *Recycler[T, R]) Name() string { return r.name }

// MaxLive returns the live object cap.
func (r *Recycler[T, R]) MaxLive() int { return r.opts.MaxLive }

// MaxAvailable returns the available object cap.
func (r *Recycler[T, R]) MaxAvailable() int { return r.opts.MaxAvailable }

// GetOrWait returns an object satisfying req. It prefers the smallest
// compatible available object, allocates while under the live cap, and
// otherwise waits for a release. A negative timeout waits until ctx ends.
// Exhaustion returns the zero T and an error wrapping ErrRecyclerExhausted.
func (r *Recycler[T, R]) GetOrWait(ctx context.Context, timeout time.Duration, req R) (T, error) {
	var zero T
	start := time.Now()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	refusedByGuard := false
	for {
		r.mu.Lock()
		if obj, ok := r.takeAvailableLocked(req); ok {
			r.mu.Unlock()
			r.recordGet(OutcomeHit, start)
			return obj, nil
		}

		if len(r.live)+r.pending < r.opts.MaxLive {
			if r.opts.MemoryGuard == nil || r.opts.MemoryGuard.AllowAllocation(req.SizeInBytes()) {
				r.pending++
				r.mu.Unlock()
				obj, err := r.allocate(req)
				if err != nil {
					return zero, err
				}
				r.recordGet(OutcomeMiss, start)
				return obj, nil
			}
			refusedByGuard = true
		}
		wait := r.changed
		r.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			r.recordGet(OutcomeTimeout, start)
			reason := "max_live_reached"
			if refusedByGuard {
				reason = "memory_guard"
			}
			return zero, errors.New(ErrRecyclerExhausted).
				Context("recycler", r.name).
				Context("reason", reason).
				Timing("get_or_wait", time.Since(start)).
				Build()
		case <-ctx.Done():
			r.recordGet(OutcomeTimeout, start)
			return zero, errors.New(ctx.Err()).
				Component("recycler").
				Category(errors.CategoryCancellation).
				Context("recycler", r.name).
				Build()
		}
	}
}

// takeAvailableLocked checks out the smallest available object fitting req.
func (r *Recycler[T, R]) takeAvailableLocked(req R) (T, bool) {
	best := -1
	for i, obj := range r.available {
		if !obj.Fits(req) {
			continue
		}
		if best < 0 || obj.SizeInBytes() < r.available[best].SizeInBytes() {
			best = i
		}
	}
	if best < 0 {
		var zero T
		return zero, false
	}

	obj := r.available[best]
	r.available = slices.Delete(r.available, best, best+1)
	r.availableBytes -= obj.SizeInBytes()

	obj.Recycle(req)
	r.live[obj] = struct{}{}
	r.liveBytes += obj.SizeInBytes()
	return obj, true
}

// allocate creates a new object for a reserved live slot.
func (r *Recycler[T, R]) allocate(req R) (T, error) {
	obj, err := r.factory.Create(req)

	r.mu.Lock()
	r.pending--
	if err != nil {
		r.notifyLocked()
		r.mu.Unlock()
		var zero T
		return zero, errors.New(err).
			Component("recycler").
			Category(errors.CategoryBuffer).
			Context("recycler", r.name).
			Context("request_bytes", req.SizeInBytes()).
			Build()
	}
	obj.Attach(r)
	r.live[obj] = struct{}{}
	r.liveBytes += obj.SizeInBytes()
	r.mu.Unlock()

	if r.logger.Enabled(context.Background(), slog.LevelDebug) {
		r.logger.Debug("allocated new object", "bytes", obj.SizeInBytes(), "live", r.NumberOfLiveObjects())
	}
	return obj, nil
}

// Release returns obj to the pool. Releasing an object that is not checked
// out is ignored. Objects beyond the available cap are freed.
func (r *Recycler[T, R]) Release(obj T) {
	r.mu.Lock()
	if _, ok := r.live[obj]; !ok {
		r.mu.Unlock()
		r.logger.Debug("ignoring release of object that is not checked out")
		return
	}
	delete(r.live, obj)
	size := obj.SizeInBytes()
	r.liveBytes -= size

	evict := len(r.available) >= r.opts.MaxAvailable
	if !evict {
		r.available = append(r.available, obj)
		r.availableBytes += size
	}
	r.notifyLocked()
	r.mu.Unlock()

	if evict {
		obj.Free()
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordEviction(r.name)
		}
	}
	r.updateMetrics()
}

// notifyLocked wakes every waiter.
func (r *Recycler[T, R]) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Preallocate fills the available pool with up to n objects for req.
func (r *Recycler[T, R]) Preallocate(n int, req R) error {
	for range n {
		r.mu.Lock()
		full := len(r.available) >= r.opts.MaxAvailable
		r.mu.Unlock()
		if full {
			break
		}

		obj, err := r.factory.Create(req)
		if err != nil {
			return errors.New(err).
				Component("recycler").
				Category(errors.CategoryBuffer).
				Context("recycler", r.name).
				Context("operation", "preallocate").
				Build()
		}
		obj.Attach(r)

		r.mu.Lock()
		r.available = append(r.available, obj)
		r.availableBytes += obj.SizeInBytes()
		r.notifyLocked()
		r.mu.Unlock()
	}
	r.updateMetrics()
	return nil
}

// Clear frees every available object. Checked out objects are untouched.
func (r *Recycler[T, R]) Clear() {
	r.mu.Lock()
	available := r.available
	r.available = nil
	r.availableBytes = 0
	r.mu.Unlock()

	for _, obj := range available {
		obj.Free()
	}
	r.updateMetrics()
}

// Free releases all pooled memory. Objects still checked out are a
// programming error: they are left alone and ErrLiveObjectsOnFree is returned.
func (r *Recycler[T, R]) Free() error {
	r.Clear()

	if live := r.NumberOfLiveObjects(); live > 0 {
		r.logger.Error("recycler freed while objects are checked out", "live", live)
		return errors.New(ErrLiveObjectsOnFree).
			Context("recycler", r.name).
			Context("live", live).
			Build()
	}
	return nil
}

// NumberOfLiveObjects returns the number of checked out objects.
func (r *Recycler[T, R]) NumberOfLiveObjects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// NumberOfAvailableObjects returns the number of objects ready for reuse.
func (r *Recycler[T, R]) NumberOfAvailableObjects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.available)
}

// LiveMemoryBytes returns the capacity of all checked out objects.
func (r *Recycler[T, R]) LiveMemoryBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveBytes
}

// AvailableMemoryBytes returns the capacity of all available objects.
func (r *Recycler[T, R]) AvailableMemoryBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.availableBytes
}

func (r *Recycler[T, R]) recordGet(outcome string, start time.Time) {
	if r.opts.Metrics == nil {
		return
	}
	r.opts.Metrics.RecordGet(r.name, outcome, time.Since(start))
	r.updateMetrics()
}

func (r *Recycler[T, R]) updateMetrics() {
	if r.opts.Metrics == nil {
		return
	}
	r.mu.Lock()
	live, available := len(r.live), len(r.available)
	liveBytes, availableBytes := r.liveBytes, r.availableBytes
	r.mu.Unlock()
	r.opts.Metrics.UpdatePool(r.name, live, available, liveBytes, availableBytes)
}
