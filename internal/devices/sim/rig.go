package sim

import (
	"context"
	"fmt"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/microscope"
	"github.com/tphakala/lightsheet-go/internal/score"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/stack/sourcesink"
)

// Stave indices of the rig's measure template.
const (
	StaveCameraTrigger = 0
	StaveLightsheetZ   = 1
	StaveLaserBlanking = 2
)

// CameraRecyclerName is the recycler the rig's cameras share.
const CameraRecyclerName = "cameras"

// SourceRecyclerName is the recycler raw source stacks are read into.
const SourceRecyclerName = "source"

// Rig is a complete simulated light-sheet microscope.
type Rig struct {
	Microscope      *microscope.Microscope
	Cameras         []*Camera
	Laser           *Laser
	FilterWheel     *FilterWheel
	OpticalSwitch   *OpticalSwitch
	Stage           *Stage
	SignalGenerator *SignalGenerator
	Recycler        *stack.Recycler

	// Source is the raw stack file replayed by the source pattern, nil otherwise.
	Source *sourcesink.RawSource
}

// Assemble registers a simulated rig with m under the master lock. The
// signal generator is registered last so every camera is armed before the
// first trigger edge. With the source pattern every camera replays the raw
// stacks named in settings.
func Assemble(ctx context.Context, m *microscope.Microscope, settings *conf.Settings) (*Rig, error) {
	template, err := MeasureTemplate(settings)
	if err != nil {
		return nil, err
	}

	rig := &Rig{
		Microscope:      m,
		Laser:           NewLaser("laser", 100),
		FilterWheel:     NewFilterWheel("filter_wheel", 6),
		OpticalSwitch:   NewOpticalSwitch("optical_switch", 2),
		Stage:           NewStage("stage"),
		SignalGenerator: NewSignalGenerator("signal_generator", settings.SignalGenerator),
	}

	for i := range max(settings.Cameras.Count, 0) {
		rig.Cameras = append(rig.Cameras, NewCamera(fmt.Sprintf("camera%d", i), i, settings))
	}

	err = m.Lock(ctx, func(ctx context.Context) error {
		for i, c := range rig.Cameras {
			if err := m.AddDevice(ctx, i, c); err != nil {
				return err
			}
			c.ConnectTrigger(rig.SignalGenerator.TriggerVariable())
		}
		for _, d := range []device.Device{rig.Laser, rig.FilterWheel, rig.OpticalSwitch, rig.Stage, rig.SignalGenerator} {
			if err := m.AddDevice(ctx, 0, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r, err := m.UseRecycler(CameraRecyclerName, settings.Recycler.MaxAvailable, settings.Recycler.MaxLive)
	if err != nil {
		return nil, err
	}
	rig.Recycler = r

	if settings.Cameras.Pattern == PatternSource {
		if err := rig.openSource(m, settings); err != nil {
			return nil, err
		}
	}

	rig.SignalGenerator.SetTemplate(template)
	m.SetSimulation(true)
	return rig, nil
}

func (r *Rig) openSource(m *microscope.Microscope, settings *conf.Settings) error {
	live := max(len(r.Cameras), 1)
	sr, err := m.Recyclers().Recycler(SourceRecyclerName, live, 1)
	if err != nil {
		return err
	}
	src, err := sourcesink.OpenRawSource(settings.Cameras.SourceDirectory, settings.Cameras.SourceName,
		sr, settings.Recycler.WaitTimeout)
	if err != nil {
		return err
	}
	for _, c := range r.Cameras {
		c.SetSource(src)
	}
	r.Source = src
	return nil
}

// Close closes the raw source, if any.
func (r *Rig) Close() error {
	if r.Source == nil {
		return nil
	}
	err := r.Source.Close()
	r.Source = nil
	return err
}

// MeasureTemplate returns one exposure long measure that triggers the
// cameras, sweeps the light sheet and unblanks the laser.
func MeasureTemplate(settings *conf.Settings) (*score.Measure, error) {
	channels := max(settings.SignalGenerator.Channels, StaveLaserBlanking+1)
	m := score.NewMeasureWithStaves("exposure", channels)
	m.SetDuration(settings.Cameras.Exposure)
	staves := []struct {
		index int
		stave score.Stave
	}{
		{StaveCameraTrigger, score.NewTriggerStave("camera.trigger", 0, 0.1)},
		{StaveLightsheetZ, score.NewRampContinuousStave("lightsheet.z", 0, 1, -1, 1, 0)},
		{StaveLaserBlanking, &score.ConstantStave{Label: "laser.blanking", Level: 1}},
	}
	for _, s := range staves {
		if err := m.SetStave(s.index, s.stave); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddTimePoint stages every queue of q with the camera keep plane flag and
// the stage z position, then adds the time point.
func (r *Rig) AddTimePoint(q *microscope.Queue, keep bool, z float64) error {
	for _, c := range r.Cameras {
		dq, ok := q.DeviceQueue(c)
		if !ok {
			continue
		}
		if err := StageCamera(dq, c.Name(), func(s *CameraState) { s.KeepPlane = keep }); err != nil {
			return err
		}
	}
	if dq, ok := q.DeviceQueue(r.Stage); ok {
		if err := StageTargets(dq, r.Stage.Name(), func(t []float64) { t[r.Stage.DOFIndex("Z")] = z }); err != nil {
			return err
		}
	}
	if dq, ok := q.DeviceQueue(r.Laser); ok {
		if err := StageLaser(dq, r.Laser.Name(), func(s *LaserState) { s.On = keep }); err != nil {
			return err
		}
	}
	return q.AddCurrentStateToQueue()
}
