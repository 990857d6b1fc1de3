package microscope

import "github.com/tphakala/lightsheet-go/internal/errors"

// ComponentMicroscope identifies microscope errors.
const ComponentMicroscope = "microscope"

var (
	// ErrDeviceExists is returned by AddDevice when a device of the same kind
	// is already registered at the index.
	ErrDeviceExists = errors.New(errors.NewStd("device already registered")).
		Component(ComponentMicroscope).
		Category(errors.CategoryConflict).
		Build()

	// ErrForeignQueue is returned when a queue requested from another
	// microscope is played.
	ErrForeignQueue = errors.New(errors.NewStd("queue was requested from another microscope")).
		Component(ComponentMicroscope).
		Category(errors.CategoryValidation).
		Build()

	// ErrNoSuchCamera is returned for camera indices without a registered camera.
	ErrNoSuchCamera = errors.New(errors.NewStd("no camera at index")).
		Component(ComponentMicroscope).
		Category(errors.CategoryNotFound).
		Build()
)
