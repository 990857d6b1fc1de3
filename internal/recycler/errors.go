package recycler

import "github.com/tphakala/lightsheet-go/internal/errors"

var (
	// ErrRecyclerExhausted is returned when no compatible object becomes available before the timeout.
	ErrRecyclerExhausted = errors.New(errors.NewStd("recycler exhausted")).
		Component("recycler").
		Category(errors.CategoryTimeout).
		Build()

	// ErrLiveObjectsOnFree is returned by Free while objects are still checked out.
	ErrLiveObjectsOnFree = errors.New(errors.NewStd("recycler freed with live objects")).
		Component("recycler").
		Category(errors.CategoryState).
		Priority(errors.PriorityCritical).
		Build()

	// ErrInvalidOptions is returned by New for unusable capacity bounds.
	ErrInvalidOptions = errors.New(errors.NewStd("invalid recycler options")).
		Component("recycler").
		Category(errors.CategoryValidation).
		Build()
)
