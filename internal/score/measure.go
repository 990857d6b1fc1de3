package score

import (
	"fmt"
	"reflect"
	"time"

	"github.com/tphakala/lightsheet-go/internal/errors"
)

// DefaultNumberOfStaves is the number of staves of a new measure.
const DefaultNumberOfStaves = 16

// Measure is one synchronized group of staves played for a duration. A
// sync measure marks a hardware sync boundary instead of producing samples.
//
// Measures are not safe for concurrent modification; share duplicates.
type Measure struct {
	name             string
	duration         time.Duration
	staves           []Stave
	sync             bool
	syncOnRisingEdge bool
	syncChannel      int
}

// NewMeasure returns a measure of DefaultNumberOfStaves zero staves.
func NewMeasure(name string) *Measure {
	return NewMeasureWithStaves(name, DefaultNumberOfStaves)
}

// NewMeasureWithStaves returns a measure of n zero staves.
func NewMeasureWithStaves(name string, n int) *Measure {
	staves := make([]Stave, max(n, 0))
	for i := range staves {
		staves[i] = ZeroStave{}
	}
	return &Measure{name: name, staves: staves}
}

// Name returns the measure name.
func (m *Measure) Name() string { return m.name }

// NumberOfStaves returns the fixed number of staves.
func (m *Measure) NumberOfStaves() int { return len(m.staves) }

// SetStave replaces stave i. A nil stave resets the channel to zero.
func (m *Measure) SetStave(i int, s Stave) error {
	if i < 0 || i >= len(m.staves) {
		return errors.New(ErrStaveIndexOutOfRange).
			Context("measure", m.name).
			Context("index", i).
			Context("staves", len(m.staves)).
			Build()
	}
	if s == nil {
		s = ZeroStave{}
	}
	m.staves[i] = s
	return nil
}

// EnsureSetStave returns the stave at i if one other than zero is set,
// otherwise installs s and returns it. Out of range indices return s
// without modifying the measure.
func (m *Measure) EnsureSetStave(i int, s Stave) Stave {
	if i < 0 || i >= len(m.staves) {
		return s
	}
	if existing := m.staves[i]; existing != nil {
		if _, zero := existing.(ZeroStave); !zero {
			return existing
		}
	}
	m.staves[i] = s
	return s
}

// Stave returns stave i, or a zero stave for out of range indices.
func (m *Measure) Stave(i int) Stave {
	if i < 0 || i >= len(m.staves) || m.staves[i] == nil {
		return ZeroStave{}
	}
	return m.staves[i]
}

// Duration returns how long the measure plays.
func (m *Measure) Duration() time.Duration { return m.duration }

// SetDuration sets how long the measure plays.
func (m *Measure) SetDuration(d time.Duration) { m.duration = d }

// IsSync reports whether the measure is a sync boundary.
func (m *Measure) IsSync() bool { return m.sync }

// SetSync marks the measure as a sync boundary.
func (m *Measure) SetSync(sync bool) { m.sync = sync }

// IsSyncOnRisingEdge reports whether the sync triggers on a rising edge.
func (m *Measure) IsSyncOnRisingEdge() bool { return m.syncOnRisingEdge }

// SetSyncOnRisingEdge selects rising or falling edge sync.
func (m *Measure) SetSyncOnRisingEdge(rising bool) { m.syncOnRisingEdge = rising }

// SyncChannel returns the digital input the sync waits on.
func (m *Measure) SyncChannel() int { return m.syncChannel }

// SetSyncChannel sets the digital input the sync waits on.
func (m *Measure) SetSyncChannel(ch int) { m.syncChannel = ch }

// Duplicate returns a deep copy.
func (m *Measure) Duplicate() *Measure {
	d := *m
	d.staves = make([]Stave, len(m.staves))
	for i, s := range m.staves {
		if s == nil {
			d.staves[i] = ZeroStave{}
			continue
		}
		d.staves[i] = s.Duplicate()
	}
	return &d
}

// Equal reports whether m and other produce the same output. Names are ignored.
func (m *Measure) Equal(other *Measure) bool {
	if m == other {
		return true
	}
	if m == nil || other == nil {
		return false
	}
	if m.duration != other.duration || m.sync != other.sync ||
		m.syncOnRisingEdge != other.syncOnRisingEdge || m.syncChannel != other.syncChannel ||
		len(m.staves) != len(other.staves) {
		return false
	}
	for i := range m.staves {
		if !reflect.DeepEqual(m.Stave(i), other.Stave(i)) {
			return false
		}
	}
	return true
}

func (m *Measure) String() string {
	return fmt.Sprintf("Measure[%s]", m.name)
}
