package sim

import (
	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// SwitchState is the staged state of an optical switch for one time point.
type SwitchState struct {
	Lightsheet int
}

// OpticalSwitch routes the laser to one of several light sheets. Its
// playback is instantaneous and it does not take part in playback
// aggregation.
type OpticalSwitch struct {
	name     string
	outputs  int
	selected *variable.Variable[int]
}

// NewOpticalSwitch returns a switch routing to light sheet 0.
func NewOpticalSwitch(name string, outputs int) *OpticalSwitch {
	return &OpticalSwitch{name: name, outputs: max(outputs, 1), selected: variable.New(name+".lightsheet", 0)}
}

func (s *OpticalSwitch) Name() string { return s.name }

// SelectedVariable reflects the selected light sheet.
func (s *OpticalSwitch) SelectedVariable() *variable.Variable[int] { return s.selected }

// RequestQueue returns a queue staged from the current selection.
func (s *OpticalSwitch) RequestQueue() device.Queue {
	return device.NewQueueBase(s.name, SwitchState{Lightsheet: s.selected.Get()}, nil)
}

// PlayQueue applies the time points and returns nil.
func (s *OpticalSwitch) PlayQueue(q device.Queue) *future.Future[bool] {
	qb, err := device.Cast[SwitchState](q, s.name)
	if err != nil {
		return future.Failed[bool](err)
	}
	points, err := qb.BeginPlayback()
	if err != nil {
		return future.Failed[bool](err)
	}
	defer qb.EndPlayback()
	for _, p := range points {
		if p.Lightsheet >= 0 && p.Lightsheet < s.outputs {
			s.selected.Set(p.Lightsheet)
		}
	}
	return nil
}
