package stack

import (
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/recycler"
)

// OffHeapFactory allocates stacks sized exactly to the request.
type OffHeapFactory struct{}

// Create allocates a zeroed stack for req with default metadata.
func (OffHeapFactory) Create(req Request) (*Stack, error) {
	if !req.Valid() {
		return nil, errors.New(ErrInvalidRequest).Context("request", req.String()).Build()
	}
	mem, mapped, err := allocateMemory(req.SizeInBytes())
	if err != nil {
		return nil, errors.New(err).
			Component("stack").
			Category(errors.CategorySystem).
			Context("operation", "allocate_stack_memory").
			Context("request", req.String()).
			Build()
	}
	return newStack(mem, mapped, req), nil
}

// Recycler pools stacks.
type Recycler = recycler.Recycler[*Stack, Request]

// NewRecycler creates a stack recycler backed by OffHeapFactory.
func NewRecycler(name string, maxLive, maxAvailable int, opts ...RecyclerOption) (*Recycler, error) {
	options := recycler.Options{MaxLive: maxLive, MaxAvailable: maxAvailable}
	for _, opt := range opts {
		opt(&options)
	}
	return recycler.New[*Stack, Request](name, OffHeapFactory{}, options)
}

// RecyclerOption customizes NewRecycler.
type RecyclerOption func(*recycler.Options)

// WithMemoryGuard installs a guard consulted before each allocation.
func WithMemoryGuard(guard recycler.MemoryGuard) RecyclerOption {
	return func(o *recycler.Options) { o.MemoryGuard = guard }
}

// WithMetrics installs a metrics sink.
func WithMetrics(m recycler.Metrics) RecyclerOption {
	return func(o *recycler.Options) { o.Metrics = m }
}
