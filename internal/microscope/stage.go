package microscope

import "github.com/tphakala/lightsheet-go/internal/device"

// Degrees of freedom of the main stage.
const (
	DOFX = "X"
	DOFY = "Y"
	DOFZ = "Z"
	DOFR = "R"
)

// MainStage returns the first registered stage, or nil.
func (m *Microscope) MainStage() device.Stage {
	s, _ := Device[device.Stage](m, 0)
	return s
}

// SetStageX sets the X target of the main stage.
func (m *Microscope) SetStageX(v float64) bool { return m.setStage(DOFX, v) }

// SetStageY sets the Y target of the main stage.
func (m *Microscope) SetStageY(v float64) bool { return m.setStage(DOFY, v) }

// SetStageZ sets the Z target of the main stage.
func (m *Microscope) SetStageZ(v float64) bool { return m.setStage(DOFZ, v) }

// SetStageR sets the rotation target of the main stage.
func (m *Microscope) SetStageR(v float64) bool { return m.setStage(DOFR, v) }

// StageX returns the current X position of the main stage.
func (m *Microscope) StageX() float64 { return m.stagePosition(DOFX) }

// StageY returns the current Y position of the main stage.
func (m *Microscope) StageY() float64 { return m.stagePosition(DOFY) }

// StageZ returns the current Z position of the main stage.
func (m *Microscope) StageZ() float64 { return m.stagePosition(DOFZ) }

// StageR returns the current rotation of the main stage.
func (m *Microscope) StageR() float64 { return m.stagePosition(DOFR) }

func (m *Microscope) setStage(dof string, v float64) bool {
	s := m.MainStage()
	if s == nil {
		return false
	}
	i := s.DOFIndex(dof)
	if i < 0 {
		return false
	}
	s.TargetPosition(i).Set(v)
	return true
}

func (m *Microscope) stagePosition(dof string) float64 {
	s := m.MainStage()
	if s == nil {
		return 0
	}
	i := s.DOFIndex(dof)
	if i < 0 {
		return 0
	}
	return s.CurrentPosition(i).Get()
}

// SetSimulation marks the microscope as running on simulated devices.
func (m *Microscope) SetSimulation(simulation bool) { m.simulation.Store(simulation) }

// IsSimulation reports whether the microscope runs on simulated devices.
func (m *Microscope) IsSimulation() bool { return m.simulation.Load() }
