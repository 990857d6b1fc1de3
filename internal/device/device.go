// Package device defines the contracts a device must satisfy to take part in
// synchronized acquisition, and the queue state machine shared by queueable
// devices.
//
// Lifecycle methods report success as a bool. Root causes are logged by the
// device itself; callers decide whether to stop, retry or abort.
package device

import (
	"github.com/tphakala/lightsheet-go/internal/future"
	"github.com/tphakala/lightsheet-go/internal/stack"
	"github.com/tphakala/lightsheet-go/internal/variable"
)

// Device is anything registered with a microscope.
type Device interface {
	Name() string
}

// OpenCloser is implemented by devices that hold a hardware connection.
type OpenCloser interface {
	Open() bool
	Close() bool
}

// StartStopper is implemented by devices with a running state.
type StartStopper interface {
	Start() bool
	Stop() bool
}

// Activable is implemented by devices that can be switched off without
// being removed.
type Activable interface {
	IsActive() bool
}

// Queue is one device's ordered list of staged time points.
type Queue interface {
	// AddCurrentStateToQueue appends a snapshot of the staged state.
	AddCurrentStateToQueue() error
	// FinalizeQueue freezes the queue for playback.
	FinalizeQueue() error
	// Clear drops all time points and returns the queue to Idle.
	Clear()
	// Truncate drops the time points past the first n.
	Truncate(n int)
	QueueLength() int
	State() QueueState
}

// QueueDevice is a device that can play a queue of time points.
type QueueDevice interface {
	Device
	// RequestQueue returns a new empty queue staged from the device's
	// current settings.
	RequestQueue() Queue
	// PlayQueue starts playback of q and returns without waiting. A nil
	// future excludes the device from playback aggregation.
	PlayQueue(q Queue) *future.Future[bool]
}

// StackCamera is a queue device producing stacks.
type StackCamera interface {
	QueueDevice
	// StackVariable is set with every acquired stack. The receiver of a
	// stack owns one reference to it.
	StackVariable() *variable.Variable[*stack.Stack]
	SetRecycler(r *stack.Recycler)
	Recycler() *stack.Recycler
}

// Stage is a queue device moving along named degrees of freedom.
type Stage interface {
	QueueDevice
	NumberOfDOFs() int
	// DOFIndex returns the index of the named degree of freedom or -1.
	DOFIndex(name string) int
	DOFName(index int) string
	TargetPosition(dof int) *variable.Variable[float64]
	CurrentPosition(dof int) *variable.Variable[float64]
}
