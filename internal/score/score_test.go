package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreMeasures(t *testing.T) {
	t.Parallel()

	s := NewScore("s")
	m := rampMeasure("m", time.Millisecond)
	s.AddMeasure(m)
	s.AddMeasureMultipleTimes(m, 3)

	assert.Equal(t, "s", s.Name())
	assert.Equal(t, 4, s.NumberOfMeasures())
	assert.Equal(t, 4*time.Millisecond, s.Duration())

	measures := s.Measures()
	assert.Same(t, m, measures[0])
	for _, dup := range measures[1:] {
		assert.NotSame(t, m, dup)
		assert.True(t, m.Equal(dup))
	}

	measures[0] = nil
	assert.Same(t, m, s.Measures()[0], "Measures returns a copy")

	s.Clear()
	assert.Zero(t, s.NumberOfMeasures())
	assert.Zero(t, s.Duration())
}

func TestFingerprintTracksCompiledContent(t *testing.T) {
	t.Parallel()

	build := func(stop float64, d time.Duration) *Score {
		m := NewMeasureWithStaves("m", 2)
		m.SetDuration(d)
		require.NoError(t, m.SetStave(0, NewRampContinuousStave("r", 0, 1, 0, stop, 0)))
		s := NewScore("s")
		s.AddMeasure(m)
		return s
	}

	base := build(1, time.Millisecond)
	assert.Equal(t, base.Fingerprint(), build(1, time.Millisecond).Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), build(2, time.Millisecond).Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), build(1, 2*time.Millisecond).Fingerprint())

	synced := base.Duplicate()
	synced.Measures()[0].SetSync(true)
	assert.NotEqual(t, base.Fingerprint(), synced.Fingerprint())
}
