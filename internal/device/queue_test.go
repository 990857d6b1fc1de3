package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type laserState struct {
	On    bool
	Power float64
	Tags  []string
}

func copyLaserState(s laserState) laserState {
	s.Tags = append([]string(nil), s.Tags...)
	return s
}

func TestQueueStateMachine(t *testing.T) {
	t.Parallel()

	q := NewQueueBase("laser", laserState{}, copyLaserState)
	assert.Equal(t, QueueIdle, q.State())

	require.NoError(t, q.Stage(func(s *laserState) { s.On = true; s.Power = 10 }))
	assert.Equal(t, QueueStaging, q.State())
	require.NoError(t, q.AddCurrentStateToQueue())
	require.NoError(t, q.Stage(func(s *laserState) { s.Power = 20 }))
	require.NoError(t, q.AddCurrentStateToQueue())

	require.NoError(t, q.FinalizeQueue())
	assert.Equal(t, QueueReady, q.State())
	assert.True(t, q.IsFrozen())

	points, err := q.BeginPlayback()
	require.NoError(t, err)
	assert.Equal(t, QueuePlaying, q.State())
	require.Len(t, points, 2)
	assert.InDelta(t, 10.0, points[0].Power, 0)
	assert.InDelta(t, 20.0, points[1].Power, 0)

	_, err = q.BeginPlayback()
	require.ErrorIs(t, err, ErrQueueNotReady)
	require.ErrorIs(t, q.FinalizeQueue(), ErrQueueFrozen)

	q.EndPlayback()
	assert.Equal(t, QueueIdle, q.State())

	// A played queue can be played again but not modified.
	require.ErrorIs(t, q.AddCurrentStateToQueue(), ErrQueueFrozen)
	require.ErrorIs(t, q.Stage(func(*laserState) {}), ErrQueueFrozen)
	_, err = q.BeginPlayback()
	require.NoError(t, err)
	q.EndPlayback()

	q.Clear()
	assert.Zero(t, q.QueueLength())
	assert.False(t, q.IsFrozen())
	require.NoError(t, q.AddCurrentStateToQueue())
}

func TestPlaybackRequiresFinalize(t *testing.T) {
	t.Parallel()

	q := NewQueueBase("stage", 0.0, nil)
	require.NoError(t, q.AddCurrentStateToQueue())
	_, err := q.BeginPlayback()
	require.ErrorIs(t, err, ErrQueueNotReady)
}

func TestEmptyQueueCanBeFinalizedAndPlayed(t *testing.T) {
	t.Parallel()

	q := NewQueueBase("camera", 0, nil)
	require.NoError(t, q.FinalizeQueue())
	points, err := q.BeginPlayback()
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestTimePointsAreSnapshots(t *testing.T) {
	t.Parallel()

	q := NewQueueBase("laser", laserState{Tags: []string{"a"}}, copyLaserState)
	require.NoError(t, q.AddCurrentStateToQueue())
	require.NoError(t, q.Stage(func(s *laserState) { s.Tags[0] = "b" }))
	require.NoError(t, q.AddCurrentStateToQueue())

	points := q.TimePoints()
	assert.Equal(t, []string{"a"}, points[0].Tags)
	assert.Equal(t, []string{"b"}, points[1].Tags)

	points[0].Tags[0] = "mutated"
	assert.Equal(t, []string{"a"}, q.TimePoints()[0].Tags)
}

func TestClearIgnoredWhilePlaying(t *testing.T) {
	t.Parallel()

	q := NewQueueBase("laser", laserState{}, nil)
	require.NoError(t, q.AddCurrentStateToQueue())
	require.NoError(t, q.FinalizeQueue())
	_, err := q.BeginPlayback()
	require.NoError(t, err)

	q.Clear()
	assert.Equal(t, 1, q.QueueLength())
	assert.Equal(t, QueuePlaying, q.State())
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	q := NewQueueBase("laser", laserState{}, copyLaserState)
	for p := range 3 {
		require.NoError(t, q.Stage(func(s *laserState) { s.Power = float64(p) }))
		require.NoError(t, q.AddCurrentStateToQueue())
	}

	q.Truncate(5)
	assert.Equal(t, 3, q.QueueLength())
	q.Truncate(1)
	require.Equal(t, 1, q.QueueLength())
	assert.InDelta(t, 0.0, q.TimePoints()[0].Power, 0)

	require.NoError(t, q.FinalizeQueue())
	_, err := q.BeginPlayback()
	require.NoError(t, err)
	q.Truncate(0)
	assert.Equal(t, 1, q.QueueLength(), "playing queues keep their time points")
}

func TestCast(t *testing.T) {
	t.Parallel()

	q := NewQueueBase("laser", laserState{}, nil)
	got, err := Cast[laserState](q, "laser")
	require.NoError(t, err)
	assert.Same(t, q, got)

	_, err = Cast[laserState](q, "other")
	require.ErrorIs(t, err, ErrWrongQueue)
	_, err = Cast[int](q, "laser")
	require.ErrorIs(t, err, ErrWrongQueue)
}

func TestQueueStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state QueueState
		want  string
	}{
		{QueueIdle, "idle"},
		{QueueStaging, "staging"},
		{QueueReady, "ready"},
		{QueuePlaying, "playing"},
		{QueueState(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
