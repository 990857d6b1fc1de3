package sim

import (
	"slices"

	"github.com/tphakala/lightsheet-go/internal/device"
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// StageDOFs are the degrees of freedom of the simulated stage.
var StageDOFs = []string{"X", "Y", "Z", "R"}

// Stage is a simulated motorized stage that reaches its targets instantly.
type Stage struct {
	name    string
	targets []*variable.Variable[float64]
	current []*variable.Variable[float64]
}

// NewStage returns a stage at the origin.
func NewStage(name string) *Stage {
	s := &Stage{name: name}
	for _, dof := range StageDOFs {
		target := variable.New(name+"."+dof+".target", 0.0)
		current := variable.New(name+"."+dof+".current", 0.0)
		target.SendUpdatesTo(current)
		s.targets = append(s.targets, target)
		s.current = append(s.current, current)
	}
	return s
}

func (s *Stage) Name() string      { return s.name }
func (s *Stage) Open() bool        { return true }
func (s *Stage) Close() bool       { return true }
func (s *Stage) NumberOfDOFs() int { return len(StageDOFs) }

// DOFIndex returns the index of the named degree of freedom or -1.
func (s *Stage) DOFIndex(name string) int { return slices.Index(StageDOFs, name) }

// DOFName returns the name of degree of freedom i.
func (s *Stage) DOFName(i int) string {
	if i < 0 || i >= len(StageDOFs) {
		return ""
	}
	return StageDOFs[i]
}

// TargetPosition returns the target of degree of freedom dof.
func (s *Stage) TargetPosition(dof int) *variable.Variable[float64] { return s.targets[dof] }

// CurrentPosition returns the position of degree of freedom dof.
func (s *Stage) CurrentPosition(dof int) *variable.Variable[float64] { return s.current[dof] }

// RequestQueue returns a queue staged from the current targets.
func (s *Stage) RequestQueue() device.Queue {
	targets := make([]float64, len(s.targets))
	for i, t := range s.targets {
		targets[i] = t.Get()
	}
	return device.NewQueueBase(s.name, targets, func(t []float64) []float64 { return slices.Clone(t) })
}

// PlayQueue moves through the queued targets in order.
func (s *Stage) PlayQueue(q device.Queue) *future.Future[bool] {
	qb, err := device.Cast[[]float64](q, s.name)
	if err != nil {
		return future.Failed[bool](err)
	}
	points, err := qb.BeginPlayback()
	if err != nil {
		return future.Failed[bool](err)
	}
	defer qb.EndPlayback()
	for _, targets := range points {
		for i, v := range targets {
			if i < len(s.targets) {
				s.targets[i].Set(v)
			}
		}
	}
	return future.Completed(true)
}

// StageTargets modifies the staged targets of a stage queue.
func StageTargets(q device.Queue, name string, fn func(targets []float64)) error {
	qb, err := device.Cast[[]float64](q, name)
	if err != nil {
		return err
	}
	return qb.Stage(func(staged *[]float64) { fn(*staged) })
}
