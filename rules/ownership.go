//go:build ruleguard

// Package gorules contains ruleguard checks run by golangci-lint. They catch
// misuse of stack references, variable listeners and the error builder.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// DeferredReleaseInLoop reports stacks released by defer inside a loop. The
// reference is held until the function returns, so a camera loop keeps every
// stack it touched checked out of its recycler.
//
//	for i := range n {
//	    s, _ := r.GetOrWait(ctx, timeout, req)
//	    defer s.Release() // held until return
//	}
func DeferredReleaseInLoop(m dsl.Matcher) {
	m.Match(
		`for $*_ { $*_; defer $s.Release(); $*_ }`,
		`for $*_ := range $_ { $*_; defer $s.Release(); $*_ }`,
	).
		Where(m["s"].Type.Is("*stack.Stack") || m["s"].Type.Is("*stack.Handle")).
		Report("$s.Release() deferred in a loop holds every stack until return; release at the end of the iteration")
}

// DiscardedCheckout reports recycler checkouts whose object is dropped. The
// object stays live and counts against the live cap forever.
func DiscardedCheckout(m dsl.Matcher) {
	m.Match(
		`_, $_ = $r.GetOrWait($*_)`,
		`_, $_ := $r.GetOrWait($*_)`,
		`_, $_ = stack.Get($*_)`,
		`_, $_ := stack.Get($*_)`,
	).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("checked out object is discarded and never released")
}

// DiscardedListenerRemoval reports listeners registered without keeping the
// removal func. The listener and everything it captures live as long as the
// variable.
func DiscardedListenerRemoval(m dsl.Matcher) {
	m.Match(`$v.AddSetListener($_)`).
		Where(m["$$"].Node.Parent.Is(`ExprStmt`)).
		Report("keep the func returned by $v.AddSetListener to remove the listener")

	m.Match(`variable.OnRisingEdge($*_)`).
		Where(m["$$"].Node.Parent.Is(`ExprStmt`)).
		Report("keep the func returned by variable.OnRisingEdge to disconnect the trigger")

	m.Match(
		`$_, _ = variable.NextChange($_)`,
		`$_, _ := variable.NextChange($_)`,
	).
		Report("call the cancel func returned by variable.NextChange, the listener stays registered otherwise")
}
