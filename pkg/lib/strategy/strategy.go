// Package strategy sequences the installer and companion controllers into the launcher workflows.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/companion"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/config"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/console"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/event"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/installer"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/mutex"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

var logger = log.New(io.Discard, "strategy: ", log.LstdFlags)

// SetLogger redirects the package logs.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

// ExitNoFallback is the process exit code when the installer failed and fallback is disabled.
const ExitNoFallback = 123

var (
	ErrFallback   = errors.New("installer did not complete, applying fallback method")
	ErrNoFallback = errors.New("installer did not complete and fallback is disabled")
)

// salvageTimeout bounds how long output left in the pipe by a dead companion is collected.
const salvageTimeout = time.Second

// Installer is the installer controller.
type Installer interface {
	AddEvent(e installer.Event) (installer.State, error)
}

// Companion is the companion controller.
type Companion interface {
	AddEvent(e companion.Event) (companion.State, error)
	Exits() <-chan companion.Exit
	Shutdown() error
}

// Console redirects this process output while the companion displays it.
type Console interface {
	Redirect() (uintptr, error)
	Restore() error
	// Detach restores the streams but leaves unread output in the pipe.
	Detach() error
	// Pending returns how many bytes of output wait in the pipe.
	Pending() (int, error)
	IsRedirected() bool
	HideWindow() bool
	ShowWindow(behind window.Handle) bool
}

// Strategy runs the installer, optionally alongside the companion.
//
// The console state and the companion window are touched both by the workflow and by companion
// exit notifications, always under guard.
type Strategy struct {
	installer  Installer
	force      config.ForceMode
	noFallback bool

	newConsole   func() (Console, *os.File, error)
	newCompanion func(stdin *os.File) Companion
	closeEvent   *event.Event
	stdout       io.Writer
	onExit       func(companion.Exit)

	guard        *mutex.Guard
	guardTimeout time.Duration

	// guarded
	console          Console
	consoleRead      *os.File
	consoleVisible   bool
	companion        Companion
	companionWindow  window.Handle
	companionRunning bool
	companionDied    bool

	transcript *console.Transcript
	watchDone  chan struct{}
	stopWatch  context.CancelFunc
	closeOnce  sync.Once
}

// Option customizes a Strategy.
type Option func(*Strategy)

// WithForceMode imposes a UI mode over auto detection.
func WithForceMode(m config.ForceMode) Option {
	return func(s *Strategy) { s.force = m }
}

// WithoutFallback turns installer failures into ErrNoFallback.
func WithoutFallback() Option {
	return func(s *Strategy) { s.noFallback = true }
}

// WithCompanion enables the companion. newConsole provides the console redirection and the read
// end the companion consumes as its standard input.
func WithCompanion(newConsole func() (Console, *os.File, error), newCompanion func(stdin *os.File) Companion) Option {
	return func(s *Strategy) {
		s.newConsole = newConsole
		s.newCompanion = newCompanion
	}
}

// WithCloseEvent fires ev when the companion is closed, for companions that watch it.
func WithCloseEvent(ev *event.Event) Option {
	return func(s *Strategy) { s.closeEvent = ev }
}

// WithExitHook is called with every unexpected companion exit.
func WithExitHook(fn func(companion.Exit)) Option {
	return func(s *Strategy) { s.onExit = fn }
}

// WithGuardTimeout bounds the wait on the console guard.
func WithGuardTimeout(d time.Duration) Option {
	return func(s *Strategy) { s.guardTimeout = d }
}

// WithOutput is where output salvaged from a dead companion is replayed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Strategy) { s.stdout = w }
}

// New returns a Strategy driving inst.
func New(inst Installer, opts ...Option) *Strategy {
	s := &Strategy{
		installer:      inst,
		guard:          mutex.NewGuard(),
		guardTimeout:   mutex.DefaultGuardTimeout,
		consoleVisible: true,
		stdout:         os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolve applies the force mode to an auto detected request.
func (s *Strategy) resolve(mode installer.Mode) installer.Mode {
	if mode != installer.ModeAutoDetect {
		return mode
	}
	switch s.force {
	case config.ForceModeText:
		return installer.ModeText
	case config.ForceModeGui:
		return installer.ModeGui
	}
	return installer.ModeAutoDetect
}

// Outcome turns a workflow result into what the caller should do next: nil on success, an error
// wrapping ErrFallback when the plain setup should run, ErrNoFallback when it must not.
func (s *Strategy) Outcome(err error) error {
	if err == nil {
		return nil
	}
	var code installer.Code
	if errors.As(err, &code) && code == installer.ENotImpl {
		// the installer does not exist in this distro, nothing failed
		return fmt.Errorf("%w: %w", ErrFallback, err)
	}
	if s.noFallback {
		return fmt.Errorf("%w: %w", ErrNoFallback, err)
	}
	return fmt.Errorf("%w: %w", ErrFallback, err)
}
