package sim

import (
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// FilterWheel is a simulated filter wheel. It is not queueable; positions
// change immediately.
type FilterWheel struct {
	name      string
	positions int
	position  *variable.Variable[int]
}

// NewFilterWheel returns a wheel with the given number of positions at position 0.
func NewFilterWheel(name string, positions int) *FilterWheel {
	return &FilterWheel{
		name:      name,
		positions: max(positions, 1),
		position:  variable.New(name+".position", 0),
	}
}

func (w *FilterWheel) Name() string { return w.name }
func (w *FilterWheel) Open() bool   { return true }
func (w *FilterWheel) Close() bool  { return true }

// NumberOfPositions returns the number of filter slots.
func (w *FilterWheel) NumberOfPositions() int { return w.positions }

// PositionVariable reflects the current position.
func (w *FilterWheel) PositionVariable() *variable.Variable[int] { return w.position }

// SetPosition moves the wheel to p.
func (w *FilterWheel) SetPosition(p int) error {
	if p < 0 || p >= w.positions {
		return errors.New(ErrInvalidPosition).
			Context("device", w.name).
			Context("position", p).
			Context("positions", w.positions).
			Build()
	}
	w.position.Set(p)
	return nil
}
