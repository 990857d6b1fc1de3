package score

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lightsheet-go/internal/conf"
)

func testCompiler() Compiler {
	return Compiler{SampleInterval: 10 * time.Microsecond, ChunkSize: DefaultChunkSize, Channels: 4}
}

func rampMeasure(name string, d time.Duration) *Measure {
	m := NewMeasureWithStaves(name, 4)
	m.SetDuration(d)
	_ = m.SetStave(0, NewRampContinuousStave("galvo", 0, 1, -1, 1, 0))
	_ = m.SetStave(1, NewTriggerStave("camera", 0.1, 0.9))
	_ = m.SetStave(2, &SinusStave{Label: "etl", Period: 0.5, Amplitude: 1})
	return m
}

func TestNewCompilerFromSettings(t *testing.T) {
	t.Parallel()

	c := NewCompiler(conf.Defaults().SignalGenerator)
	assert.Positive(t, c.SampleInterval)
	assert.Positive(t, c.ChunkSize)
	assert.Positive(t, c.Channels)
}

func TestTimePointsAreRoundedDurationOverInterval(t *testing.T) {
	t.Parallel()

	c := testCompiler()
	tests := []struct {
		duration time.Duration
		want     int64
	}{
		{0, 0},
		{4 * time.Microsecond, 0},
		{5 * time.Microsecond, 1},
		{10 * time.Microsecond, 1},
		{14 * time.Microsecond, 1},
		{15 * time.Microsecond, 2},
		{time.Millisecond, 100},
		{1001 * time.Microsecond, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.TimePointsFor(tt.duration), tt.duration.String())
	}
}

// Compiling the same score twice yields identical samples.
func TestCompileIsDeterministic(t *testing.T) {
	t.Parallel()

	s := NewScore("s")
	s.AddMeasureMultipleTimes(rampMeasure("plane", 1237*time.Microsecond), 5)

	c := testCompiler()
	first, err := c.CompileScore(s)
	require.NoError(t, err)
	second, err := c.CompileScore(s.Duplicate())
	require.NoError(t, err)

	for ch := range c.Channels {
		if diff := cmp.Diff(first.Channel(ch), second.Channel(ch)); diff != "" {
			t.Errorf("channel %d differs (-first +second):\n%s", ch, diff)
		}
	}
	assert.Equal(t, s.Fingerprint(), s.Duplicate().Fingerprint())
}

func TestCompileSamplesAndChunks(t *testing.T) {
	t.Parallel()

	c := Compiler{SampleInterval: time.Microsecond, ChunkSize: 100, Channels: 4}
	s := NewScore("s")
	s.AddMeasure(rampMeasure("a", 250*time.Microsecond))

	cs, err := c.CompileScore(s)
	require.NoError(t, err)

	assert.Equal(t, int64(250), cs.NumberOfTimePoints())
	assert.Equal(t, 1, cs.NumberOfMeasures())
	assert.InDelta(t, 1e6, cs.SamplingRate(), 1e-6)
	assert.Equal(t, 250*time.Microsecond, cs.Duration())

	chunks := cs.Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, 100, chunks[0].TimePoints)
	assert.Equal(t, 100, chunks[1].TimePoints)
	assert.Equal(t, 50, chunks[2].TimePoints)
	assert.Len(t, chunks[2].Samples, 50*4)

	galvo := cs.Channel(0)
	require.Len(t, galvo, 250)
	assert.InDelta(t, -1, galvo[0], 1e-6, "t = 0 at the first time point")
	assert.InDelta(t, -1+2*125.0/250, galvo[125], 1e-6)
	assert.InDelta(t, galvo[125], cs.Sample(125, 0), 0)
	assert.Equal(t, cs.Sample(130, 1), cs.TimePoint(130)[1])

	assert.Equal(t, make([]float32, 250), cs.Channel(3), "unset channel is zero")
	assert.Nil(t, cs.Channel(4))
}

func TestMissingChannelsAreZero(t *testing.T) {
	t.Parallel()

	m := NewMeasureWithStaves("narrow", 1)
	m.SetDuration(10 * time.Microsecond)
	require.NoError(t, m.SetStave(0, &ConstantStave{Level: 2}))
	s := NewScore("s")
	s.AddMeasure(m)

	cs, err := Compiler{SampleInterval: time.Microsecond, ChunkSize: 8, Channels: 3}.CompileScore(s)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 0, 0}, cs.TimePoint(9))
}

func TestSyncMeasureProducesMarkOnly(t *testing.T) {
	t.Parallel()

	sync := NewMeasureWithStaves("sync", 4)
	sync.SetSync(true)
	sync.SetSyncChannel(2)
	sync.SetSyncOnRisingEdge(true)
	sync.SetDuration(time.Millisecond)

	s := NewScore("s")
	s.AddMeasure(rampMeasure("a", 100*time.Microsecond))
	s.AddMeasure(sync)
	s.AddMeasure(rampMeasure("b", 50*time.Microsecond))

	cs, err := testCompiler().CompileScore(s)
	require.NoError(t, err)

	assert.Equal(t, int64(15), cs.NumberOfTimePoints())
	assert.Equal(t, []SyncMark{{Measure: 1, TimePoint: 10, Channel: 2, RisingEdge: true}}, cs.SyncMarks())
	assert.Equal(t, []MeasureSpan{
		{Measure: 0, Start: 0, TimePoints: 10},
		{Measure: 1, Start: 10, Sync: true},
		{Measure: 2, Start: 10, TimePoints: 5},
	}, cs.Measures())
}

func TestCompileRejectsInvalidCompiler(t *testing.T) {
	t.Parallel()

	s := NewScore("s")
	s.AddMeasure(rampMeasure("a", time.Millisecond))

	_, err := Compiler{ChunkSize: 10, Channels: 1}.CompileScore(s)
	require.ErrorIs(t, err, ErrInvalidCompiler)

	c := testCompiler()
	other := NewCompiledScore(c.SampleInterval, c.Channels+1, c.ChunkSize)
	require.ErrorIs(t, c.Compile(other, s), ErrInvalidCompiler)
}

func TestCompileAppends(t *testing.T) {
	t.Parallel()

	c := testCompiler()
	s := NewScore("s")
	s.AddMeasure(rampMeasure("a", 100*time.Microsecond))

	cs := c.NewCompiledScore()
	require.NoError(t, c.Compile(cs, s))
	require.NoError(t, c.Compile(cs, s))
	assert.Equal(t, int64(20), cs.NumberOfTimePoints())
	assert.Equal(t, 2, cs.NumberOfMeasures())
}
