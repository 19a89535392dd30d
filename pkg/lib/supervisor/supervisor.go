// Package supervisor runs a child process and reports when it exits without being asked to.
package supervisor

import (
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib"
)

var logger = log.New(io.Discard, "supervisor: ", log.LstdFlags)

// SetLogger redirects the package logs.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

var (
	ErrWaitTimeout    = errors.New("timed out waiting for the process to exit")
	ErrNotStarted     = errors.New("process was not started")
	ErrAlreadyStarted = errors.New("process was already started")
	ErrExitedEarly    = errors.New("process exited right after creation")
)

// inputIdleTimeout bounds the wait for a new console child to become ready for input.
const inputIdleTimeout = 5 * time.Second

// Exit describes an unexpected termination.
type Exit struct {
	ID       string
	PID      int
	ExitCode int
}

// Process supervises one child process.
//
// Once started, a waiter goroutine observes the exit. If the exit was not caused by Terminate
// and nobody called Unsubscribe, the listener runs once on the waiter goroutine and an Exit is
// published on the channel returned by Exits.
type Process struct {
	id      string
	command lib.Command
	opts    options

	cmd  *exec.Cmd
	done chan struct{}

	// status fields
	mu       sync.RWMutex
	state    lib.ProcessState
	exitCode *int
	start    time.Time
	end      *time.Time
	pid      int
	threadID uint32

	// exit subscription; held while the listener runs, so Unsubscribe returning means no
	// listener is running or will run
	listenerMu sync.Mutex
	listener   func(exitCode int)
	subscribed bool

	exits chan Exit
}

type options struct {
	stdin, stdout, stderr *os.File
	newConsole            bool
	dir                   string
	env                   []string
}

// Option customizes a Process.
type Option func(*options)

// WithStdin makes the child read from f.
func WithStdin(f *os.File) Option {
	return func(o *options) { o.stdin = f }
}

// WithStdout makes the child write its output to f.
func WithStdout(f *os.File) Option {
	return func(o *options) { o.stdout = f }
}

// WithStderr makes the child write its errors to f.
func WithStderr(f *os.File) Option {
	return func(o *options) { o.stderr = f }
}

// WithNewConsole gives the child its own console window and waits for it to be ready for input.
func WithNewConsole() Option {
	return func(o *options) { o.newConsole = true }
}

// WithDir sets the working directory of the child.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithEnv appends variables to the inherited environment.
func WithEnv(env ...string) Option {
	return func(o *options) { o.env = append(o.env, env...) }
}

// New prepares a process. Nothing runs until Start.
func New(command string, args []string, opts ...Option) *Process {
	p := &Process{
		id:      lib.NewID(),
		command: lib.Command{Command: command, Args: append([]string(nil), args...)},
		done:    make(chan struct{}),
		exits:   make(chan Exit, 1),
	}
	for _, opt := range opts {
		opt(&p.opts)
	}
	return p
}

// ID identifies the process in logs.
func (p *Process) ID() string {
	return p.id
}

// Command returns what the process runs.
func (p *Process) Command() lib.Command {
	return p.command
}

// PID returns the OS process id, 0 before Start.
func (p *Process) PID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pid
}

// ThreadID returns the id of the main thread of the child where the platform exposes it.
func (p *Process) ThreadID() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.threadID
}

// Exits delivers unexpected terminations.
func (p *Process) Exits() <-chan Exit {
	return p.exits
}
