// Package fsm is a small finite state machine engine shared by the launcher controllers.
//
// A controller describes its states and events as two closed sets (usually sealed
// interfaces) and a transition function doing an exhaustive type switch over them.
// The engine stores the current state and applies events one at a time.
package fsm

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

var logger = log.New(io.Discard, "fsm: ", log.LstdFlags)

// SetLogger redirects the package logs.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

// ErrInvalidTransition is wrapped by every Rejection.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionFunc returns the next state and true when the (state, event) pair has a handler.
// Handlers are total: once a pair is accepted, the returned state is stored unconditionally.
type TransitionFunc[S any, E any] func(current S, event E) (S, bool)

// Rejection pairs the untouched current state with the event it could not handle.
type Rejection[S any, E any] struct {
	Current  S
	Received E
}

func (r *Rejection[S, E]) Error() string {
	return fmt.Sprintf("%v: event %T not accepted in state %T", ErrInvalidTransition, r.Received, r.Current)
}

func (r *Rejection[S, E]) Unwrap() error {
	return ErrInvalidTransition
}

// Machine holds exactly one state at a time.
type Machine[S any, E any] struct {
	name       string
	transition TransitionFunc[S, E]
	observer   func(from, to S, event E)

	// serializes AddEvent; handlers may block on OS calls and must not interleave
	eventMu sync.Mutex

	mu    sync.RWMutex
	state S
}

// Option customizes a Machine.
type Option[S any, E any] func(*Machine[S, E])

// WithName labels log lines and observer callbacks.
func WithName[S any, E any](name string) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.name = name
	}
}

// WithObserver registers a callback run after every accepted transition.
func WithObserver[S any, E any](observer func(from, to S, event E)) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.observer = observer
	}
}

// New creates a machine in the initial state.
func New[S any, E any](initial S, transition TransitionFunc[S, E], opts ...Option[S, E]) *Machine[S, E] {
	m := &Machine[S, E]{
		name:       "machine",
		transition: transition,
		state:      initial,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the label given with WithName.
func (m *Machine[S, E]) Name() string {
	return m.name
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AddEvent feeds an event to the machine. On success the new state is stored and returned.
// On rejection a *Rejection is returned and the stored state is left as it was.
func (m *Machine[S, E]) AddEvent(event E) (S, error) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	current := m.State()
	next, ok := m.transition(current, event)
	if !ok {
		logger.Printf("[%s] rejected %T in state %T", m.name, event, current)
		return current, &Rejection[S, E]{Current: current, Received: event}
	}

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()

	logger.Printf("[%s] %T + %T -> %T", m.name, current, event, next)
	if m.observer != nil {
		m.observer(current, next, event)
	}
	return next, nil
}

// IsCurrentStateA reports whether the machine's current state has dynamic type T.
func IsCurrentStateA[T any, S any, E any](m *Machine[S, E]) bool {
	_, ok := any(m.State()).(T)
	return ok
}

// StateAs returns the current state asserted to T.
func StateAs[T any, S any, E any](m *Machine[S, E]) (T, bool) {
	t, ok := any(m.State()).(T)
	return t, ok
}
