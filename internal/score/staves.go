// Package score describes analog and digital output waveforms as staves
// grouped into measures and scores, and compiles them into time sampled
// buffers for signal generators.
package score

import (
	"math"
)

// Stave is the waveform of one output channel over a measure. Value is
// called with the normalized time t in [0, 1].
type Stave interface {
	Name() string
	Value(t float64) float64
	// Duplicate returns an independent copy, so that later edits of a staged
	// stave do not change queued time points.
	Duplicate() Stave
}

// ZeroStave outputs 0.
type ZeroStave struct{}

func (ZeroStave) Name() string          { return "zero" }
func (ZeroStave) Value(float64) float64 { return 0 }
func (ZeroStave) Duplicate() Stave      { return ZeroStave{} }

// ConstantStave outputs a constant level.
type ConstantStave struct {
	Label string
	Level float64
}

func (s *ConstantStave) Name() string          { return s.Label }
func (s *ConstantStave) Value(float64) float64 { return s.Level }
func (s *ConstantStave) Duplicate() Stave      { return clone(*s) }

// RampContinuousStave ramps from Start to Stop between SyncStart and
// SyncStop and outputs Outside elsewhere. An Exponent other than 1 shapes
// the ramp as sign(x)·|x|^Exponent.
type RampContinuousStave struct {
	Label     string
	SyncStart float64
	SyncStop  float64
	Start     float64
	Stop      float64
	Outside   float64
	Exponent  float64
}

// NewRampContinuousStave returns a linear ramp.
func NewRampContinuousStave(name string, syncStart, syncStop, start, stop, outside float64) *RampContinuousStave {
	return &RampContinuousStave{
		Label:     name,
		SyncStart: syncStart,
		SyncStop:  syncStop,
		Start:     start,
		Stop:      stop,
		Outside:   outside,
		Exponent:  1,
	}
}

func (s *RampContinuousStave) Name() string { return s.Label }

func (s *RampContinuousStave) Value(t float64) float64 {
	progress, inside := s.progress(t)
	if !inside {
		return s.Outside
	}
	if s.Exponent != 1 && s.Exponent != 0 {
		progress = abspow(progress, s.Exponent)
	}
	return s.Start + (s.Stop-s.Start)*progress
}

// progress returns the normalized position of t inside the ramp window.
func (s *RampContinuousStave) progress(t float64) (float64, bool) {
	if t < s.SyncStart || t > s.SyncStop {
		return 0, false
	}
	if s.SyncStop == s.SyncStart {
		return 0, true
	}
	return (t - s.SyncStart) / (s.SyncStop - s.SyncStart), true
}

// RampHeight returns |Stop - Start|.
func (s *RampContinuousStave) RampHeight() float64 {
	return math.Abs(s.Stop - s.Start)
}

func (s *RampContinuousStave) Duplicate() Stave { return clone(*s) }

func abspow(v, exponent float64) float64 {
	if v == 0 {
		return 0
	}
	return math.Copysign(math.Pow(math.Abs(v), exponent), v)
}

// RampSteppingStave is a ramp quantized into steps of StepHeight.
type RampSteppingStave struct {
	RampContinuousStave
	StepHeight float64
}

// NewRampSteppingStave returns a stepped linear ramp.
func NewRampSteppingStave(name string, syncStart, syncStop, start, stop, outside, stepHeight float64) *RampSteppingStave {
	return &RampSteppingStave{
		RampContinuousStave: *NewRampContinuousStave(name, syncStart, syncStop, start, stop, outside),
		StepHeight:          stepHeight,
	}
}

func (s *RampSteppingStave) Value(t float64) float64 {
	v := s.RampContinuousStave.Value(t)
	if _, inside := s.progress(t); !inside || s.StepHeight <= 0 {
		return v
	}
	steps := math.Floor((v - s.Start) / s.StepHeight)
	if s.Stop < s.Start {
		steps = math.Ceil((v - s.Start) / s.StepHeight)
	}
	return s.Start + steps*s.StepHeight
}

func (s *RampSteppingStave) Duplicate() Stave { return clone(*s) }

// SinusStave outputs Offset + Amplitude·sin(2π(t/Period + Phase)).
// Period and Phase are in units of the measure duration.
type SinusStave struct {
	Label     string
	Period    float64
	Phase     float64
	Amplitude float64
	Offset    float64
}

func (s *SinusStave) Name() string { return s.Label }

func (s *SinusStave) Value(t float64) float64 {
	if s.Period == 0 {
		return s.Offset
	}
	return s.Offset + s.Amplitude*math.Sin(2*math.Pi*(t/s.Period+s.Phase))
}

func (s *SinusStave) Duplicate() Stave { return clone(*s) }

// TriggerStave outputs On inside [SyncStart, SyncStop) and Off elsewhere.
// Invert swaps the two levels.
type TriggerStave struct {
	Label     string
	SyncStart float64
	SyncStop  float64
	On        float64
	Off       float64
	Invert    bool
}

// NewTriggerStave returns a 0/1 trigger over [syncStart, syncStop).
func NewTriggerStave(name string, syncStart, syncStop float64) *TriggerStave {
	return &TriggerStave{Label: name, SyncStart: syncStart, SyncStop: syncStop, On: 1}
}

func (s *TriggerStave) Name() string { return s.Label }

func (s *TriggerStave) Value(t float64) float64 {
	on := t >= s.SyncStart && t < s.SyncStop
	if on != s.Invert {
		return s.On
	}
	return s.Off
}

func (s *TriggerStave) Duplicate() Stave { return clone(*s) }

func clone[T any](v T) *T {
	return &v
}
