package microscope

import (
	"github.com/tphakala/lightsheet-go/internal/pipeline"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// AddStackProcessor appends p to the pipeline with its own recycler.
func (m *Microscope) AddStackProcessor(p pipeline.Processor, recyclerName string, maxLive, maxAvailable int) error {
	return m.pipeline.AddStackProcessor(p, recyclerName, maxLive, maxAvailable)
}

// RemoveStackProcessor removes p from the pipeline.
func (m *Microscope) RemoveStackProcessor(p pipeline.Processor) error {
	return m.pipeline.RemoveStackProcessor(p)
}

// StackProcessor returns the i-th processor.
func (m *Microscope) StackProcessor(i int) (pipeline.Processor, bool) {
	return m.pipeline.StackProcessor(i)
}

// NumberOfStackProcessors returns the pipeline length.
func (m *Microscope) NumberOfStackProcessors() int {
	return m.pipeline.NumberOfProcessors()
}

// PipelineStackVariable is set with every processed stack.
func (m *Microscope) PipelineStackVariable() *variable.Variable[*stack.Stack] {
	return m.pipeline.OutputVariable()
}

// Pipeline returns the stack pipeline.
func (m *Microscope) Pipeline() *pipeline.Pipeline { return m.pipeline }

// CleanupSink returns the sink owning the last processed stacks.
func (m *Microscope) CleanupSink() *pipeline.CleanupSink { return m.sink }

// CameraStackVariable returns the stack variable of camera i. Stacks seen
// there belong to the pipeline; listeners must not keep them.
func (m *Microscope) CameraStackVariable(i int) *variable.Variable[*stack.Stack] {
	c, ok := m.camera(i)
	if !ok {
		return nil
	}
	return c.device.StackVariable()
}

// CameraAcquiredVariable is set with the metadata of every stack camera i publishes.
func (m *Microscope) CameraAcquiredVariable(i int) *variable.Variable[StackInfo] {
	c, ok := m.camera(i)
	if !ok {
		return nil
	}
	return c.acquired
}

// CameraPixelSizeVariable returns the configured pixel size of camera i in nanometers.
func (m *Microscope) CameraPixelSizeVariable(i int) *variable.Variable[float64] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.pixelSizes[i]; ok {
		return v
	}
	v := variable.New(m.name+".pixel_size_nm", m.settings.PixelSizeNm(i))
	m.pixelSizes[i] = v
	return v
}
