// Package variable provides observable values shared between devices, the
// microscope and the stack pipeline.
package variable

import (
	"sync"
)

// SetListener is called after every Set with the previous and the new value.
type SetListener[T any] func(old, new T)

type listenerEntry[T any] struct {
	id uint64
	fn SetListener[T]
}

// Variable is a named value that notifies listeners on every Set.
// Listeners run on the setting goroutine, outside the variable lock, in
// registration order.
type Variable[T any] struct {
	name string

	mu        sync.RWMutex
	value     T
	listeners []listenerEntry[T]
	nextID    uint64
}

// New creates a variable holding initial.
func New[T any](name string, initial T) *Variable[T] {
	return &Variable[T]{name: name, value: initial}
}

// Name returns the variable name.
func (v *Variable[T]) Name() string {
	return v.name
}

// Get returns the current value.
func (v *Variable[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores value and notifies listeners.
func (v *Variable[T]) Set(value T) {
	v.mu.Lock()
	old := v.value
	v.value = value
	listeners := make([]SetListener[T], len(v.listeners))
	for i, l := range v.listeners {
		listeners[i] = l.fn
	}
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(old, value)
	}
}

// AddSetListener registers fn and returns a function removing it.
// The returned function is safe to call more than once and from within fn.
func (v *Variable[T]) AddSetListener(fn SetListener[T]) (remove func()) {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.listeners = append(v.listeners, listenerEntry[T]{id: id, fn: fn})
	v.mu.Unlock()

	return func() { v.removeListener(id) }
}

func (v *Variable[T]) removeListener(id uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, l := range v.listeners {
		if l.id == id {
			v.listeners = append(v.listeners[:i:i], v.listeners[i+1:]...)
			return
		}
	}
}

// NumberOfListeners returns the number of registered set listeners.
func (v *Variable[T]) NumberOfListeners() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.listeners)
}

// SendUpdatesTo forwards every new value of v to other.
func (v *Variable[T]) SendUpdatesTo(other *Variable[T]) (remove func()) {
	return v.AddSetListener(func(_, value T) { other.Set(value) })
}

// OnRisingEdge calls fn each time v is set to true while it was false.
func OnRisingEdge(v *Variable[bool], fn func()) (remove func()) {
	return v.AddSetListener(func(old, value bool) {
		if !old && value {
			fn()
		}
	})
}

// Pulse sets v to false and then to true, producing one rising edge.
func Pulse(v *Variable[bool]) {
	v.Set(false)
	v.Set(true)
}

// NextChange returns a channel receiving the value of the next Set on v.
// The listener removes itself after firing; cancel removes it early.
func NextChange[T any](v *Variable[T]) (next <-chan T, cancel func()) {
	ch := make(chan T, 1)
	var once sync.Once
	var remove func()
	var removeMu sync.Mutex

	removeMu.Lock()
	remove = v.AddSetListener(func(_, value T) {
		once.Do(func() {
			ch <- value
			removeMu.Lock()
			r := remove
			removeMu.Unlock()
			r()
		})
	})
	removeMu.Unlock()

	return ch, func() {
		removeMu.Lock()
		r := remove
		removeMu.Unlock()
		r()
	}
}
