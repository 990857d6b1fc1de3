package score

import "github.com/tphakala/lightsheet-go/internal/errors"

var (
	// ErrStaveIndexOutOfRange is returned by SetStave for indices outside the measure.
	ErrStaveIndexOutOfRange = errors.New(errors.NewStd("stave index out of range")).
		Component("score").
		Category(errors.CategoryValidation).
		Build()

	// ErrInvalidCompiler is returned for unusable compiler parameters.
	ErrInvalidCompiler = errors.New(errors.NewStd("invalid score compiler parameters")).
		Component("score").
		Category(errors.CategoryCompile).
		Build()
)
