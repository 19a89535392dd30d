// Package event implements a named, cross-process signal that can be fired only once.
package event

import (
	"errors"
	"sync"
)

var ErrInvalid = errors.New("event is not valid")

// Event starts armed. Set fires it and invalidates the object: every later Set fails.
type Event struct {
	name string

	mu     sync.Mutex
	handle uintptr
	armed  bool
	fired  bool
}

// New creates or opens the named event.
func New(name string) (*Event, error) {
	h, err := create(name)
	if err != nil {
		return nil, err
	}
	return &Event{name: name, handle: h, armed: true}, nil
}

// Name returns the OS name of the event.
func (e *Event) Name() string {
	return e.name
}

// Valid reports whether the event is armed and was not fired yet.
func (e *Event) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed && !e.fired
}

// Set fires the event. Only the first successful call returns true.
func (e *Event) Set() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed || e.fired {
		return false
	}
	if err := signal(e.handle, e.name); err != nil {
		return false
	}
	e.fired = true
	return true
}

// Close releases the OS object. The event is no longer valid afterwards.
func (e *Event) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed {
		return nil
	}
	e.armed = false
	return release(e.handle, e.name)
}

// Signaled reports whether the named event was fired by any process.
func Signaled(name string) bool {
	return isSignaled(name)
}
