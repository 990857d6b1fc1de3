package score

import (
	"math"
	"time"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/errors"
)

// Compiler samples scores at a fixed hardware sample interval.
type Compiler struct {
	SampleInterval time.Duration
	ChunkSize      int
	Channels       int
}

// NewCompiler returns a compiler for the configured signal generator.
func NewCompiler(s conf.SignalGeneratorSettings) Compiler {
	return Compiler{SampleInterval: s.SampleInterval, ChunkSize: s.ChunkSize, Channels: s.Channels}
}

func (c Compiler) validate() error {
	if c.SampleInterval <= 0 || c.ChunkSize < 1 || c.Channels < 1 {
		return errors.New(ErrInvalidCompiler).
			Context("sample_interval", c.SampleInterval.String()).
			Context("chunk_size", c.ChunkSize).
			Context("channels", c.Channels).
			Build()
	}
	return nil
}

// TimePointsFor returns round(d / SampleInterval).
func (c Compiler) TimePointsFor(d time.Duration) int64 {
	if c.SampleInterval <= 0 || d <= 0 {
		return 0
	}
	return int64(math.Round(float64(d) / float64(c.SampleInterval)))
}

// NewCompiledScore returns an empty compiled score matching the compiler.
func (c Compiler) NewCompiledScore() *CompiledScore {
	return NewCompiledScore(c.SampleInterval, c.Channels, c.ChunkSize)
}

// Compile appends the samples of every measure of s to cs, in order.
// Channels without a stave, and staves beyond the compiler channels, are
// treated as zero. Compilation is deterministic.
func (c Compiler) Compile(cs *CompiledScore, s *Score) error {
	if err := c.validate(); err != nil {
		return err
	}
	if cs.channels != c.Channels || cs.chunkSize != c.ChunkSize || cs.sampleInterval != c.SampleInterval {
		return errors.New(ErrInvalidCompiler).
			Context("reason", "compiled score layout differs from compiler").
			Build()
	}

	values := make([]float32, c.Channels)
	for _, m := range s.measures {
		c.compileMeasure(cs, m, values)
	}
	return nil
}

// CompileScore compiles s into a new compiled score.
func (c Compiler) CompileScore(s *Score) (*CompiledScore, error) {
	cs := c.NewCompiledScore()
	if err := c.Compile(cs, s); err != nil {
		return nil, err
	}
	return cs, nil
}

func (c Compiler) compileMeasure(cs *CompiledScore, m *Measure, values []float32) {
	index := len(cs.spans)
	if m.IsSync() {
		cs.syncMarks = append(cs.syncMarks, SyncMark{
			Measure:    index,
			TimePoint:  cs.timePoints,
			Channel:    m.SyncChannel(),
			RisingEdge: m.IsSyncOnRisingEdge(),
		})
		cs.spans = append(cs.spans, MeasureSpan{Measure: index, Start: cs.timePoints, Sync: true})
		return
	}

	n := c.TimePointsFor(m.Duration())
	cs.spans = append(cs.spans, MeasureSpan{Measure: index, Start: cs.timePoints, TimePoints: n})

	staves := make([]Stave, c.Channels)
	for ch := range staves {
		staves[ch] = m.Stave(ch)
	}
	for iter := range n {
		t := float64(iter) / float64(n)
		for ch, st := range staves {
			values[ch] = float32(st.Value(t))
		}
		cs.appendTimePoint(values)
	}
}
