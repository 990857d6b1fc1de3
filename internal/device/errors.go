package device

import "github.com/tphakala/lightsheet-go/internal/errors"

// ComponentDevice identifies device errors.
const ComponentDevice = "device"

var (
	// ErrQueueFrozen is returned when a finalized or played queue is modified.
	ErrQueueFrozen = errors.New(errors.NewStd("queue is frozen")).
		Component(ComponentDevice).
		Category(errors.CategoryState).
		Build()

	// ErrQueueNotReady is returned when playback starts on a queue that was not finalized.
	ErrQueueNotReady = errors.New(errors.NewStd("queue is not ready for playback")).
		Component(ComponentDevice).
		Category(errors.CategoryState).
		Build()

	// ErrWrongQueue is returned when a device is asked to play a queue it did not create.
	ErrWrongQueue = errors.New(errors.NewStd("queue belongs to another device")).
		Component(ComponentDevice).
		Category(errors.CategoryValidation).
		Build()
)
