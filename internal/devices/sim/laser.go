package sim

import (
	"log/slog"

	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// LaserState is the staged state of a laser for one time point.
type LaserState struct {
	On                   bool
	TargetPowerMilliWatt float64
}

// Laser is a simulated laser. Power is clamped to [0, MaxPowerMilliWatt].
type Laser struct {
	name     string
	maxPower float64
	logger   *slog.Logger

	on    *variable.Variable[bool]
	power *variable.Variable[float64]
}

// NewLaser returns a switched off laser.
func NewLaser(name string, maxPowerMilliWatt float64) *Laser {
	return &Laser{
		name:     name,
		maxPower: maxPowerMilliWatt,
		logger:   deviceLogger("laser", name),
		on:       variable.New(name+".on", false),
		power:    variable.New(name+".power_mw", 0.0),
	}
}

func (l *Laser) Name() string { return l.name }
func (l *Laser) Open() bool   { return true }

func (l *Laser) Close() bool {
	l.on.Set(false)
	return true
}

// LaserOnVariable reflects the emission state.
func (l *Laser) LaserOnVariable() *variable.Variable[bool] { return l.on }

// PowerVariable reflects the output power in milliwatt.
func (l *Laser) PowerVariable() *variable.Variable[float64] { return l.power }

// MaxPowerMilliWatt returns the power limit.
func (l *Laser) MaxPowerMilliWatt() float64 { return l.maxPower }

// RequestQueue returns a queue staged from the current laser state.
func (l *Laser) RequestQueue() device.Queue {
	return device.NewQueueBase(l.name, LaserState{On: l.on.Get(), TargetPowerMilliWatt: l.power.Get()}, nil)
}

// PlayQueue applies the time points in order and completes immediately.
func (l *Laser) PlayQueue(q device.Queue) *future.Future[bool] {
	qb, err := device.Cast[LaserState](q, l.name)
	if err != nil {
		return future.Failed[bool](err)
	}
	points, err := qb.BeginPlayback()
	if err != nil {
		return future.Failed[bool](err)
	}
	defer qb.EndPlayback()

	for _, p := range points {
		l.power.Set(min(max(p.TargetPowerMilliWatt, 0), l.maxPower))
		l.on.Set(p.On)
	}
	l.logger.Debug("laser queue played", "time_points", len(points))
	return future.Completed(true)
}

// StageLaser modifies the staged state of a laser queue.
func StageLaser(q device.Queue, name string, fn func(*LaserState)) error {
	qb, err := device.Cast[LaserState](q, name)
	if err != nil {
		return err
	}
	return qb.Stage(fn)
}
