package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

func TestCleanupSinkKeepsLastStacks(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 5)
	v := variable.New[*stack.Stack]("output", nil)
	sink := NewCleanupSink(v, 3)

	var published []*stack.Stack
	for i := range int64(5) {
		s := getStack(t, r, i)
		published = append(published, s)
		v.Set(s)
	}

	assert.Equal(t, published[2:], sink.Stacks())
	assert.Same(t, published[4], sink.Last())
	assert.Equal(t, 3, r.NumberOfLiveObjects())

	v.Set(nil)
	assert.Len(t, sink.Stacks(), 3, "nil values are ignored")

	sink.Close()
	assert.Zero(t, r.NumberOfLiveObjects())
	assert.Nil(t, sink.Last())
	assert.Zero(t, v.NumberOfListeners())
}

func TestCleanupSinkAfterCloseReleasesImmediately(t *testing.T) {
	t.Parallel()

	r := newTestRecycler(t, 1)
	v := variable.New[*stack.Stack]("output", nil)
	sink := NewCleanupSink(v, 2)
	sink.Close()

	s := getStack(t, r, 0)
	sink.add(s)
	require.Zero(t, r.NumberOfLiveObjects())
}
