// Package mutex provides named, cross-process mutual exclusion with a non-blocking,
// monadic locking interface.
//
// Typical use:
//
//	m := mutex.New("root-user", mutex.WithLazyInit())
//	defer m.Close()
//
//	l := m.Lock().AndThen(func() {
//		// exclusive section
//	}).OrElse(func(err error) {
//		// somebody else holds it
//	})
//	defer l.Release()
//
// A Lock must be released by its owner. Release is idempotent, and AndThen releases the lock
// itself before re-raising a panic coming from its callable.
package mutex

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

var logger = log.New(io.Discard, "mutex: ", log.LstdFlags)

// SetLogger redirects the package logs.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

var (
	// ErrBusy means the mutex is held, by this process or by another one.
	ErrBusy = errors.New("mutex is held")
	// ErrClosed is returned when locking a mutex after Close.
	ErrClosed = errors.New("mutex is closed")
)

// DistroName scopes mutex names to a distribution. Set once at startup.
var DistroName = "Ubuntu"

// MangleName prefixes a lock name to avoid collisions with other distributions and applications.
func MangleName(name string) string {
	return "WSL_" + DistroName + "_" + name
}

// Handle is an opaque reference to an OS synchronization object.
type Handle uintptr

// Backend performs the OS side of a named mutex. Names passed in are already mangled.
type Backend interface {
	Create(name string) (Handle, error)
	Destroy(h Handle, name string) error
	// TryAcquire must not block. It returns ErrBusy when the object is held.
	TryAcquire(h Handle, name string) error
	Release(h Handle, name string) error
}

// Mutex is a named mutex. The zero value is not usable, use New.
type Mutex struct {
	name    string
	backend Backend
	lazy    bool

	mu      sync.Mutex
	handle  Handle
	created bool
	held    bool
	closed  bool
	initErr error
}

// Option customizes a Mutex.
type Option func(*Mutex)

// WithLazyInit defers creating the OS object until the first Lock.
func WithLazyInit() Option {
	return func(m *Mutex) {
		m.lazy = true
	}
}

// WithBackend replaces the OS backend.
func WithBackend(b Backend) Option {
	return func(m *Mutex) {
		m.backend = b
	}
}

// New creates a named mutex. Unless WithLazyInit is given, the OS object is created right away;
// a creation failure is reported by the first Lock.
func New(name string, opts ...Option) *Mutex {
	m := &Mutex{name: MangleName(name)}
	for _, opt := range opts {
		opt(m)
	}
	if m.backend == nil {
		m.backend = newOSBackend()
	}
	if !m.lazy {
		m.mu.Lock()
		m.initErr = m.create()
		m.mu.Unlock()
	}
	return m
}

// Name returns the mangled name.
func (m *Mutex) Name() string {
	return m.name
}

// Initialized reports whether the OS object exists.
func (m *Mutex) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

func (m *Mutex) create() error {
	if m.created {
		return nil
	}
	h, err := m.backend.Create(m.name)
	if err != nil {
		logger.Printf("Failed to create mutex %s: %v", m.name, err)
		return fmt.Errorf("failed to create mutex %s: %w", m.name, err)
	}
	m.handle = h
	m.created = true
	return nil
}

// Lock attempts to acquire the mutex without blocking. The returned Lock tells whether it worked.
func (m *Mutex) Lock() *Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &Lock{err: ErrClosed}
	}
	if err := m.create(); err != nil {
		return &Lock{err: err}
	}
	if m.held {
		return &Lock{err: ErrBusy}
	}
	if err := m.backend.TryAcquire(m.handle, m.name); err != nil {
		logger.Printf("Could not acquire %s: %v", m.name, err)
		return &Lock{err: err}
	}
	m.held = true
	return &Lock{parent: m}
}

func (m *Mutex) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return
	}
	m.held = false
	if err := m.backend.Release(m.handle, m.name); err != nil {
		logger.Printf("Failed to release %s: %v", m.name, err)
	}
}

// With runs fn while holding the mutex. It returns ErrBusy (or the acquisition error) without
// running fn when the mutex could not be taken.
func (m *Mutex) With(fn func() error) error {
	l := m.Lock()
	defer l.Release()
	if !l.Ok() {
		return l.Why()
	}
	var err error
	l.AndThen(func() { err = fn() })
	return err
}

// Close releases the OS object. Outstanding locks are released first.
func (m *Mutex) Close() error {
	m.release()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if !m.created {
		return nil
	}
	m.created = false
	return m.backend.Destroy(m.handle, m.name)
}

// Lock is the outcome of an acquisition attempt.
type Lock struct {
	once   sync.Once
	parent *Mutex
	err    error
}

// Ok reports whether the lock is held.
func (l *Lock) Ok() bool {
	return l != nil && l.parent != nil && l.err == nil
}

// Why returns the reason the acquisition failed, nil when it succeeded.
func (l *Lock) Why() error {
	if l == nil {
		return ErrClosed
	}
	return l.err
}

// Release gives the mutex back. Calling it on a failed or already released Lock does nothing.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if l.parent != nil && l.err == nil {
			l.parent.release()
		}
		l.parent = nil
	})
}

// AndThen runs fn only if the lock is held. If fn panics, the lock is released and the panic
// continues to unwind.
func (l *Lock) AndThen(fn func()) *Lock {
	if !l.Ok() {
		return l
	}
	panicking := true
	defer func() {
		if panicking {
			l.Release()
		}
	}()
	fn()
	panicking = false
	return l
}

// OrElse runs fn with the failure reason only if the lock is not held.
func (l *Lock) OrElse(fn func(err error)) *Lock {
	if l.Ok() {
		return l
	}
	fn(l.Why())
	return l
}
