//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo reports goroutines tracked with Add and Done instead of wg.Go.
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    serve()
//	}()
//
// becomes
//
//	wg.Go(serve)
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of Add and a deferred Done").
		Suggest("$wg.Go(func() { $*_ })")

	m.Match(`go func() { $*_; $wg.Done() }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of a manual Done")
}

// TimeAfterInLoop reports time.After inside select loops. Each iteration
// allocates a timer; device loops use one time.Timer and Reset it.
func TimeAfterInLoop(m dsl.Matcher) {
	m.Match(`for { $*_; select { $*_; case <-time.After($_): $*_; $*_ }; $*_ }`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("time.After in a loop allocates a timer per iteration; reuse a time.Timer")
}

// SleepInDevice reports time.Sleep in device and microscope code, which
// must stay responsive to Stop and context cancellation.
func SleepInDevice(m dsl.Matcher) {
	m.Match(`time.Sleep($_)`).
		Where(m.File().PkgPath.Matches(`/internal/(devices/sim|microscope|pipeline)$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("time.Sleep ignores Stop and cancellation; wait on a timer and the run context")
}
