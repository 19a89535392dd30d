// Package companion supervises the graphical companion shown while the distro is set up.
//
//	Closed  + Run              -> Visible | Closed
//	Visible + ToggleVisibility -> Hidden
//	Hidden  + ToggleVisibility -> Visible
//	Hidden  + PlaceBehind      -> Visible
//	Visible + Close            -> ShouldBeClosed
//	Hidden  + Close            -> ShouldBeClosed
//
// ShouldBeClosed accepts nothing.
package companion

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/fsm"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/supervisor"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

var logger = log.New(io.Discard, "companion: ", log.LstdFlags)

// SetLogger redirects the package logs.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

// WindowClass is the class of the companion top-level window.
const WindowClass = "FLUTTER_RUNNER_WIN32_WINDOW"

const (
	defaultHandshakeTimeout = 2 * time.Second
	// the window of a freshly started companion takes a moment to show up
	defaultSettleDelay = 500 * time.Millisecond
)

// Child is the supervised companion process.
type Child interface {
	Start() error
	SetListener(fn func(exitCode int))
	Unsubscribe()
	Terminate() error
	// Valid reports whether the process runs.
	Valid() bool
	ThreadID() uint32
	PID() int
}

// Exit reports that the companion terminated without being closed.
type Exit struct {
	PID      int
	ExitCode int
}

// Controller owns the companion state machine and the companion process.
type Controller struct {
	*fsm.Machine[State, Event]

	exe   string
	stdin *os.File

	win              window.Ops
	newChild         func(env []string) Child
	newHandshake     func() (Handshake, error)
	handshakeTimeout time.Duration
	settleDelay      time.Duration

	mu    sync.Mutex
	child Child

	exits      chan Exit
	observer   func(from, to State, event Event)
	newConsole bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithWindowOps replaces the window manager binding.
func WithWindowOps(ops window.Ops) Option {
	return func(c *Controller) { c.win = ops }
}

// WithChildFactory replaces how the companion process is created. env carries the handshake
// address.
func WithChildFactory(fn func(env []string) Child) Option {
	return func(c *Controller) { c.newChild = fn }
}

// WithHandshake replaces the handshake channel factory. A nil fn disables the handshake.
func WithHandshake(fn func() (Handshake, error)) Option {
	return func(c *Controller) { c.newHandshake = fn }
}

// WithTimeouts bounds the wait for the handshake and the delay before enumerating windows.
func WithTimeouts(handshake, settle time.Duration) Option {
	return func(c *Controller) {
		c.handshakeTimeout = handshake
		c.settleDelay = settle
	}
}

// WithNewConsole gives the companion its own console.
func WithNewConsole() Option {
	return func(c *Controller) { c.newConsole = true }
}

// WithObserver reports every accepted transition.
func WithObserver(fn func(from, to State, event Event)) Option {
	return func(c *Controller) { c.observer = fn }
}

// NewController prepares to run exe with stdin as its standard input. Nothing runs until Run.
func NewController(exe string, stdin *os.File, opts ...Option) *Controller {
	c := &Controller{
		exe:              exe,
		stdin:            stdin,
		win:              window.System(),
		newHandshake:     NewHandshake,
		handshakeTimeout: defaultHandshakeTimeout,
		settleDelay:      defaultSettleDelay,
		exits:            make(chan Exit, 1),
	}
	c.newChild = c.supervisedChild
	for _, opt := range opts {
		opt(c)
	}
	fsmOpts := []fsm.Option[State, Event]{fsm.WithName[State, Event]("companion")}
	if c.observer != nil {
		fsmOpts = append(fsmOpts, fsm.WithObserver(c.observer))
	}
	c.Machine = fsm.New[State, Event](Closed{}, c.transition, fsmOpts...)
	return c
}

func (c *Controller) supervisedChild(env []string) Child {
	var opts []supervisor.Option
	if c.stdin != nil {
		opts = append(opts, supervisor.WithStdin(c.stdin))
	}
	if len(env) > 0 {
		opts = append(opts, supervisor.WithEnv(env...))
	}
	if c.newConsole {
		opts = append(opts, supervisor.WithNewConsole())
	}
	return supervisor.New(c.exe, nil, opts...)
}

// Exits delivers unexpected companion terminations. Consume it from the control goroutine.
func (c *Controller) Exits() <-chan Exit {
	return c.exits
}

// Window returns the companion window, 0 when it has none.
func (c *Controller) Window() window.Handle {
	switch s := c.State().(type) {
	case Visible:
		return s.Window
	case Hidden:
		return s.Window
	}
	return 0
}

func (c *Controller) transition(current State, event Event) (State, bool) {
	switch s := current.(type) {
	case Closed:
		if _, ok := event.(Run); ok {
			return c.run(), true
		}
	case Visible:
		switch event.(type) {
		case ToggleVisibility:
			c.win.Hide(s.Window)
			return Hidden{Window: s.Window}, true
		case Close:
			c.unsubscribe()
			c.win.Close(s.Window)
			return ShouldBeClosed{}, true
		}
	case Hidden:
		switch e := event.(type) {
		case ToggleVisibility:
			c.win.Show(s.Window)
			return Visible{Window: s.Window}, true
		case PlaceBehind:
			c.win.PlaceBehind(s.Window, e.Front)
			return Visible{Window: s.Window}, true
		case Close:
			c.unsubscribe()
			// a hidden window could never show a close confirmation
			c.win.Quit(s.Window)
			return ShouldBeClosed{}, true
		}
	}
	return nil, false
}

func (c *Controller) run() State {
	var hs Handshake
	var env []string
	if c.newHandshake != nil {
		var err error
		if hs, err = c.newHandshake(); err != nil {
			logger.Printf("Handshake unavailable, will enumerate windows: %v", err)
		} else {
			defer hs.Close()
			env = append(env, HandshakeEnv+"="+hs.Address())
		}
	}

	child := c.newChild(env)
	child.SetListener(func(code int) {
		select {
		case c.exits <- Exit{PID: child.PID(), ExitCode: code}:
		default:
		}
	})
	if err := child.Start(); err != nil {
		logger.Printf("Failed to start the companion: %v", err)
		child.Unsubscribe()
		c.drainExits()
		return Closed{}
	}

	h := c.discoverWindow(hs, child)
	if h == 0 {
		child.Unsubscribe()
		c.drainExits()
		if child.Valid() {
			logger.Printf("Companion window not found, terminating it")
			child.Terminate()
		} else {
			logger.Printf("Companion exited before showing its window")
		}
		return Closed{}
	}

	c.mu.Lock()
	c.child = child
	c.mu.Unlock()
	return Visible{Window: h}
}

// drainExits drops an exit published by a companion that never reached Visible.
func (c *Controller) drainExits() {
	select {
	case ex := <-c.exits:
		logger.Printf("Dropping exit %d of pid %d", ex.ExitCode, ex.PID)
	default:
	}
}

func (c *Controller) discoverWindow(hs Handshake, child Child) window.Handle {
	if hs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.handshakeTimeout)
		h, err := hs.Receive(ctx)
		cancel()
		if err == nil && h != 0 {
			return h
		}
		logger.Printf("Handshake failed: %v", err)
	} else {
		time.Sleep(c.settleDelay)
	}

	h, err := c.win.FindOnThread(child.ThreadID(), WindowClass)
	if err != nil {
		logger.Printf("Enumerating companion windows: %v", err)
		return 0
	}
	return h
}

func (c *Controller) unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.child != nil {
		c.child.Unsubscribe()
	}
}

// Shutdown kills the companion process if it was ever started. It does not change the state.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	child := c.child
	c.child = nil
	c.mu.Unlock()
	if child == nil {
		return nil
	}
	return child.Terminate()
}
