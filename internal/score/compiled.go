package score

import (
	"time"
)

// DefaultChunkSize is the number of time points per hardware buffer chunk.
const DefaultChunkSize = 2999

// Chunk is one fixed capacity hardware buffer. Samples are interleaved:
// time point i of channel c is Samples[i*channels+c].
type Chunk struct {
	Samples    []float32
	TimePoints int
}

// SyncMark records a hardware sync boundary before the sample at TimePoint.
type SyncMark struct {
	Measure    int
	TimePoint  int64
	Channel    int
	RisingEdge bool
}

// MeasureSpan locates the samples of one measure.
type MeasureSpan struct {
	Measure    int
	Start      int64
	TimePoints int64
	Sync       bool
}

// CompiledScore holds the samples of a compiled score. It is read only once
// compiled and may be shared between playbacks.
type CompiledScore struct {
	sampleInterval time.Duration
	channels       int
	chunkSize      int

	chunks     []*Chunk
	timePoints int64
	spans      []MeasureSpan
	syncMarks  []SyncMark
}

// NewCompiledScore returns an empty compiled score.
func NewCompiledScore(sampleInterval time.Duration, channels, chunkSize int) *CompiledScore {
	return &CompiledScore{sampleInterval: sampleInterval, channels: channels, chunkSize: chunkSize}
}

// SampleInterval returns the time between two time points.
func (cs *CompiledScore) SampleInterval() time.Duration { return cs.sampleInterval }

// SamplingRate returns time points per second.
func (cs *CompiledScore) SamplingRate() float64 {
	if cs.sampleInterval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(cs.sampleInterval)
}

// NumberOfChannels returns the number of output channels.
func (cs *CompiledScore) NumberOfChannels() int { return cs.channels }

// ChunkSize returns the time point capacity of each chunk.
func (cs *CompiledScore) ChunkSize() int { return cs.chunkSize }

// NumberOfMeasures returns the number of compiled measures, sync measures included.
func (cs *CompiledScore) NumberOfMeasures() int { return len(cs.spans) }

// NumberOfTimePoints returns the total number of time points.
func (cs *CompiledScore) NumberOfTimePoints() int64 { return cs.timePoints }

// Duration returns the play time of all samples.
func (cs *CompiledScore) Duration() time.Duration {
	return time.Duration(cs.timePoints) * cs.sampleInterval
}

// Chunks returns the hardware buffer chunks in order.
func (cs *CompiledScore) Chunks() []*Chunk { return cs.chunks }

// Measures returns where each measure's samples start.
func (cs *CompiledScore) Measures() []MeasureSpan {
	return append([]MeasureSpan(nil), cs.spans...)
}

// SyncMarks returns the sync boundaries in order.
func (cs *CompiledScore) SyncMarks() []SyncMark {
	return append([]SyncMark(nil), cs.syncMarks...)
}

// Sample returns channel ch at time point tp.
func (cs *CompiledScore) Sample(tp int64, ch int) float32 {
	chunk := cs.chunks[tp/int64(cs.chunkSize)]
	return chunk.Samples[int(tp%int64(cs.chunkSize))*cs.channels+ch]
}

// Channel returns all samples of channel ch.
func (cs *CompiledScore) Channel(ch int) []float32 {
	if ch < 0 || ch >= cs.channels {
		return nil
	}
	out := make([]float32, 0, cs.timePoints)
	for _, chunk := range cs.chunks {
		for i := range chunk.TimePoints {
			out = append(out, chunk.Samples[i*cs.channels+ch])
		}
	}
	return out
}

// TimePoint returns the samples of all channels at tp, interleaved.
func (cs *CompiledScore) TimePoint(tp int64) []float32 {
	chunk := cs.chunks[tp/int64(cs.chunkSize)]
	offset := int(tp%int64(cs.chunkSize)) * cs.channels
	return chunk.Samples[offset : offset+cs.channels]
}

// appendTimePoint adds one interleaved time point, opening a new chunk when
// the current one is full.
func (cs *CompiledScore) appendTimePoint(values []float32) {
	if len(cs.chunks) == 0 || cs.chunks[len(cs.chunks)-1].TimePoints == cs.chunkSize {
		cs.chunks = append(cs.chunks, &Chunk{Samples: make([]float32, 0, cs.chunkSize*cs.channels)})
	}
	chunk := cs.chunks[len(cs.chunks)-1]
	chunk.Samples = append(chunk.Samples, values...)
	chunk.TimePoints++
	cs.timePoints++
}
