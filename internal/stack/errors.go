package stack

import "github.com/tphakala/lightsheet-go/internal/errors"

var (
	// ErrInvalidRequest is returned for requests with non-positive dimensions.
	ErrInvalidRequest = errors.New(errors.NewStd("invalid stack request")).
		Component("stack").
		Category(errors.CategoryValidation).
		Build()

	// ErrRequestTooLarge is returned when relabelling a stack to a request its memory cannot hold.
	ErrRequestTooLarge = errors.New(errors.NewStd("stack request exceeds capacity")).
		Component("stack").
		Category(errors.CategoryBuffer).
		Build()

	// ErrPlaneOutOfRange is returned for plane indices outside the stack depth.
	ErrPlaneOutOfRange = errors.New(errors.NewStd("plane index out of range")).
		Component("stack").
		Category(errors.CategoryValidation).
		Build()

	// ErrHandleEmpty is returned by handle operations after ownership was taken or released.
	ErrHandleEmpty = errors.New(errors.NewStd("stack handle is empty")).
		Component("stack").
		Category(errors.CategoryState).
		Build()
)
