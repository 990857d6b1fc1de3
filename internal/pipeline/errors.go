package pipeline

import "github.com/tphakala/lightsheet-go/internal/errors"

// ComponentPipeline identifies pipeline errors.
const ComponentPipeline = "pipeline"

var (
	// ErrPipelineRunning is returned when processors are changed while started.
	ErrPipelineRunning = errors.New(errors.NewStd("pipeline is running")).
		Component(ComponentPipeline).
		Category(errors.CategoryState).
		Build()

	// ErrProcessorNotFound is returned for unknown processors.
	ErrProcessorNotFound = errors.New(errors.NewStd("stack processor not found")).
		Component(ComponentPipeline).
		Category(errors.CategoryNotFound).
		Build()

	// ErrProcessorFailed wraps errors returned by a processor.
	ErrProcessorFailed = errors.New(errors.NewStd("stack processor failed")).
		Component(ComponentPipeline).
		Category(errors.CategoryWorker).
		Build()
)
