package score

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Score is an ordered list of measures.
type Score struct {
	name     string
	measures []*Measure
}

// NewScore returns an empty score.
func NewScore(name string) *Score {
	return &Score{name: name}
}

// Name returns the score name.
func (s *Score) Name() string { return s.name }

// AddMeasure appends m.
func (s *Score) AddMeasure(m *Measure) {
	s.measures = append(s.measures, m)
}

// AddMeasureMultipleTimes appends n duplicates of m.
func (s *Score) AddMeasureMultipleTimes(m *Measure, n int) {
	for range n {
		s.measures = append(s.measures, m.Duplicate())
	}
}

// Measures returns the measures in play order.
func (s *Score) Measures() []*Measure {
	return append([]*Measure(nil), s.measures...)
}

// NumberOfMeasures returns the number of measures.
func (s *Score) NumberOfMeasures() int { return len(s.measures) }

// Duration returns the summed duration of all measures.
func (s *Score) Duration() time.Duration {
	var d time.Duration
	for _, m := range s.measures {
		d += m.Duration()
	}
	return d
}

// Clear removes all measures.
func (s *Score) Clear() {
	s.measures = nil
}

// Duplicate returns a deep copy.
func (s *Score) Duplicate() *Score {
	d := &Score{name: s.name, measures: make([]*Measure, len(s.measures))}
	for i, m := range s.measures {
		d.measures[i] = m.Duplicate()
	}
	return d
}

// Fingerprint hashes everything that affects compilation. Scores with equal
// fingerprints compile to the same samples.
func (s *Score) Fingerprint() uint64 {
	h := xxhash.New()
	for _, m := range s.measures {
		fmt.Fprintf(h, "m:%d:%t:%t:%d:%d;", m.duration, m.sync, m.syncOnRisingEdge, m.syncChannel, len(m.staves))
		for i := range m.staves {
			st := m.Stave(i)
			fmt.Fprintf(h, "%T%v;", st, st)
		}
	}
	return h.Sum64()
}

func (s *Score) String() string {
	return fmt.Sprintf("Score[%s, %d measures]", s.name, len(s.measures))
}
