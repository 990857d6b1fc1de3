//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// PlainErrorsInCore reports fmt.Errorf in the acquisition core. Errors there
// carry a component and category so telemetry can group them.
//
//	return fmt.Errorf("camera %d stalled", i)
//
// becomes
//
//	return errors.Newf("camera %d stalled", i).
//	    Component("sim").
//	    Category(errors.CategoryDevice).
//	    Build()
func PlainErrorsInCore(m dsl.Matcher) {
	m.Match(`fmt.Errorf($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/(acquisition|device|devices|future|journal|microscope|pipeline|recycler|score|stack|timelapse|variable)`)).
		Report("build errors with errors.Newf(...).Component(...).Category(...).Build() in the acquisition core")
}

// UnbuiltError reports error builders that are never built.
func UnbuiltError(m dsl.Matcher) {
	m.Match(`return errors.New($_).$_($*_)`, `return errors.Newf($*_).$_($*_)`).
		Where(!m["$$"].Text.Matches(`\.Build\(\)$`)).
		Report("error builder is missing .Build()")
}
