// Package console redirects the launcher's standard output and error into a pipe read by a
// companion process, and puts them back afterwards.
package console

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

var logger = log.New(io.Discard, "console: ", log.LstdFlags)

// SetLogger redirects the package logs.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

var ErrNoWriteHandle = errors.New("pipe failed to expose the write handle")

const invalidHandle = ^uintptr(0)

// Pipe is what the service needs from a named pipe; *pipe.Pipe implements it.
type Pipe interface {
	ReadHandle() uintptr
	WriteHandle() (uintptr, error)
	WriteFileDescriptor() (uintptr, error)
	CloseWriteHandles()
	Disconnect() error
	Available() (int, error)
}

// Service owns a pipe and swaps the process standard streams to and from its write end.
//
// Redirect and Restore are idempotent. The service does not serialize callers: code that may
// call it from an exit notification must hold the same mutex.Guard as the control flow.
type Service struct {
	pipe    Pipe
	streams Streams
	win     window.Ops
	handle  window.Handle

	mu         sync.Mutex
	redirected bool
	previous   Snapshot
}

// Option customizes a Service.
type Option func(*Service)

// WithStreams replaces the process streams, mostly for tests.
func WithStreams(s Streams) Option {
	return func(svc *Service) {
		svc.streams = s
	}
}

// WithWindow sets the console window and the ops used to show or hide it.
func WithWindow(ops window.Ops, h window.Handle) Option {
	return func(svc *Service) {
		svc.win = ops
		svc.handle = h
	}
}

// NewService takes ownership of p.
func NewService(p Pipe, opts ...Option) *Service {
	svc := &Service{pipe: p, streams: OSStreams(), win: window.System()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// IsRedirected reports whether the streams currently point to the pipe.
func (s *Service) IsRedirected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirected
}

// ReadHandle returns the pipe end that receives the redirected output.
func (s *Service) ReadHandle() uintptr {
	return s.pipe.ReadHandle()
}

// Redirect points stdout and stderr to the pipe and returns its read handle. When already
// redirected it only returns the read handle.
func (s *Service) Redirect() (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redirected {
		return s.pipe.ReadHandle(), nil
	}

	h, err := s.pipe.WriteHandle()
	if err != nil {
		return invalidHandle, fmt.Errorf("%w: %v", ErrNoWriteHandle, err)
	}
	if h == 0 || h == invalidHandle {
		return invalidHandle, ErrNoWriteHandle
	}
	fd, err := s.pipe.WriteFileDescriptor()
	if err != nil {
		return invalidHandle, fmt.Errorf("%w: %v", ErrNoWriteHandle, err)
	}

	s.streams.Flush()
	previous, err := s.streams.Current()
	if err != nil {
		return invalidHandle, fmt.Errorf("failed to snapshot the console: %w", err)
	}
	if err := s.apply(Snapshot{StdoutFd: fd, StderrFd: fd, StdoutHandle: h, StderrHandle: h}); err != nil {
		s.streams.Release(previous)
		return invalidHandle, fmt.Errorf("failed to redirect the console: %w", err)
	}
	// The streams hold their own copies now.
	s.pipe.CloseWriteHandles()

	s.previous = previous
	s.redirected = true
	logger.Printf("Console redirected")
	return s.pipe.ReadHandle(), nil
}

// Restore puts back the streams saved by Redirect and drops the pipe connection. It does
// nothing when not redirected.
func (s *Service) Restore() error {
	return s.restore(true)
}

// Detach puts back the streams like Restore but keeps the pipe connected, so output nobody
// consumed yet can still be read from the read end.
func (s *Service) Detach() error {
	return s.restore(false)
}

// Pending returns how many bytes wait in the pipe.
func (s *Service) Pending() (int, error) {
	return s.pipe.Available()
}

func (s *Service) restore(disconnect bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.redirected {
		return nil
	}
	err := s.apply(s.previous)
	s.streams.Release(s.previous)
	if disconnect {
		if derr := s.pipe.Disconnect(); derr != nil {
			logger.Printf("Failed to disconnect the console pipe: %v", derr)
		}
	}
	s.redirected = false
	s.previous = Snapshot{}
	if err != nil {
		return fmt.Errorf("failed to restore the console: %w", err)
	}
	logger.Printf("Console restored")
	return nil
}

func (s *Service) apply(snap Snapshot) error {
	out, errH := s.streams.Handles()
	if snap.Equal(Snapshot{StdoutHandle: out, StderrHandle: errH}) {
		return nil
	}
	s.streams.Flush()
	return s.streams.Apply(snap)
}

// HideWindow hides the console window. It reports whether the window was visible.
func (s *Service) HideWindow() bool {
	if s.handle == 0 {
		return false
	}
	return s.win.Hide(s.handle)
}

// ShowWindow restores the console window. When behind is not zero the console is placed right
// behind that window instead of being brought to the top.
func (s *Service) ShowWindow(behind window.Handle) bool {
	if s.handle == 0 {
		return false
	}
	if behind != 0 {
		return s.win.PlaceBehind(s.handle, behind)
	}
	return s.win.Show(s.handle)
}
