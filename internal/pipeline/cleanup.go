package pipeline

import (
	"sync"

	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// CleanupSink owns the stacks published on a variable. It retains the last
// keep stacks and releases older ones.
type CleanupSink struct {
	keep   int
	remove func()

	mu     sync.Mutex
	stacks []*stack.Stack
	closed bool
}

// NewCleanupSink starts listening on v.
func NewCleanupSink(v *variable.Variable[*stack.Stack], keep int) *CleanupSink {
	c := &CleanupSink{keep: max(keep, 0)}
	c.remove = v.AddSetListener(func(_, s *stack.Stack) {
		c.add(s)
	})
	return c
}

func (c *CleanupSink) add(s *stack.Stack) {
	if s == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.Release()
		return
	}
	c.stacks = append(c.stacks, s)
	var evicted []*stack.Stack
	if n := len(c.stacks) - c.keep; n > 0 {
		evicted = append(evicted, c.stacks[:n]...)
		c.stacks = append(c.stacks[:0], c.stacks[n:]...)
	}
	c.mu.Unlock()

	for _, old := range evicted {
		old.Release()
	}
}

// Stacks returns the retained stacks, oldest first. They stay owned by the sink.
func (c *CleanupSink) Stacks() []*stack.Stack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*stack.Stack(nil), c.stacks...)
}

// Last returns the most recent retained stack or nil.
func (c *CleanupSink) Last() *stack.Stack {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stacks) == 0 {
		return nil
	}
	return c.stacks[len(c.stacks)-1]
}

// Close stops listening and releases every retained stack.
func (c *CleanupSink) Close() {
	c.remove()

	c.mu.Lock()
	stacks := c.stacks
	c.stacks = nil
	c.closed = true
	c.mu.Unlock()

	for _, s := range stacks {
		s.Release()
	}
}
