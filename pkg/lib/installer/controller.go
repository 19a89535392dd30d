// Package installer drives the distro setup tool through its install and reconfigure workflows.
//
// The Controller is a state machine:
//
//	Closed         + AutoInstall        -> AutoInstalling | UpstreamDefaultInstall
//	Closed         + InteractiveInstall -> PreparedGui | PreparedTui | UpstreamDefaultInstall
//	Closed         + Reconfig           -> Success | PreparedGui | UpstreamDefaultInstall
//	AutoInstalling + BlockOnInstaller   -> Success | UpstreamDefaultInstall
//	PreparedGui    + StartInstaller     -> Ready | UpstreamDefaultInstall
//	PreparedTui    + StartInstaller     -> Ready | UpstreamDefaultInstall
//	Ready          + BlockOnInstaller   -> Success | UpstreamDefaultInstall
//
// Any other pair is rejected. Success and UpstreamDefaultInstall accept nothing.
package installer

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/fsm"
)

var logger = log.New(io.Discard, "installer: ", log.LstdFlags)

// SetLogger redirects the package logs.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

// Controller owns the installer state machine.
type Controller struct {
	policy  Policy
	timeout time.Duration
	*fsm.Machine[State, Event]
}

// NewController starts in Closed.
func NewController(policy Policy, opts ...fsm.Option[State, Event]) *Controller {
	c := &Controller{policy: policy}
	opts = append([]fsm.Option[State, Event]{fsm.WithName[State, Event]("installer")}, opts...)
	c.Machine = fsm.New[State, Event](Closed{}, c.transition, opts...)
	return c
}

// WithInstallerTimeout bounds how long a Ready installer is waited for. Zero waits forever.
func (c *Controller) WithInstallerTimeout(d time.Duration) *Controller {
	c.timeout = d
	return c
}

func (c *Controller) transition(current State, event Event) (State, bool) {
	switch s := current.(type) {
	case Closed:
		switch e := event.(type) {
		case AutoInstall:
			return c.autoInstall(e), true
		case InteractiveInstall:
			return c.interactiveInstall(e), true
		case Reconfig:
			return c.reconfig(), true
		}
	case AutoInstalling:
		if _, ok := event.(BlockOnInstaller); ok {
			return c.runToCompletion(s.CLI), true
		}
	case PreparedGui:
		if _, ok := event.(StartInstaller); ok {
			return c.startGui(s.CLI), true
		}
	case PreparedTui:
		if _, ok := event.(StartInstaller); ok {
			return c.startTui(s.CLI), true
		}
	case Ready:
		if _, ok := event.(BlockOnInstaller); ok {
			return c.blockOnReady(s), true
		}
	}
	return nil, false
}

func (c *Controller) autoInstall(e AutoInstall) State {
	if !c.policy.IsOOBEAvailable() {
		return UpstreamDefaultInstall{Code: ENotImpl}
	}
	if _, err := os.Stat(e.Path); err != nil {
		logger.Printf("Autoinstall file %q not found: %v", e.Path, err)
		return UpstreamDefaultInstall{Code: ErrPathNotFound}
	}
	destination := autoinstallDir + baseName(e.Path)
	if !c.policy.CopyFileIntoDistro(e.Path, destination) {
		logger.Printf("Failed to copy %q into the distro", e.Path)
		return UpstreamDefaultInstall{Code: ComAdminCantCopyFile}
	}
	return AutoInstalling{CLI: strings.Join([]string{OobeCommand, TextFlag, AutoinstallFlag, destination}, " ")}
}

// baseName is the file name of path, empty for paths naming a directory such as "./".
func baseName(path string) string {
	if path == "" || os.IsPathSeparator(path[len(path)-1]) {
		return ""
	}
	base := filepath.Base(path)
	if base == "." || base == ".." {
		return ""
	}
	return base
}

func (c *Controller) interactiveInstall(e InteractiveInstall) State {
	if !c.policy.IsOOBEAvailable() {
		return UpstreamDefaultInstall{Code: ENotImpl}
	}
	cli := OobeCommand + c.policy.PreparePrefillInfo()

	mode := e.Mode
	if mode == ModeAutoDetect {
		mode = ModeGui
		if c.policy.MustRunInTextMode() {
			mode = ModeText
		}
	}
	switch mode {
	case ModeGui:
		return PreparedGui{CLI: cli}
	case ModeText:
		return PreparedTui{CLI: cli + " " + TextFlag}
	}
	return UpstreamDefaultInstall{Code: EUnexpected}
}

func (c *Controller) reconfig() State {
	if !c.policy.IsOOBEAvailable() {
		return UpstreamDefaultInstall{Code: ENotImpl}
	}
	cli := OobeCommand + " " + ReconfigureFlag
	if !c.policy.MustRunInTextMode() {
		return PreparedGui{CLI: cli}
	}
	if code := c.policy.DoLaunchSync(cli + " " + TextFlag); code != 0 {
		logger.Printf("Reconfiguration exited with %d", code)
		return UpstreamDefaultInstall{Code: EFail}
	}
	return Success{}
}

func (c *Controller) runToCompletion(cli string) State {
	if code := c.policy.DoLaunchSync(cli); code != 0 {
		logger.Printf("Installer exited with %d", code)
		return UpstreamDefaultInstall{Code: EFail}
	}
	c.policy.HandleExitStatus()
	return Success{}
}

func (c *Controller) startTui(cli string) State {
	proc, err := c.policy.StartInstallerAsync(cli)
	if err != nil || proc == nil {
		logger.Printf("Failed to launch the installer: %v", err)
		return UpstreamDefaultInstall{Code: EHandle}
	}
	if !c.policy.PollSuccess(ReadinessProbe, TuiPollAttempts, proc) {
		return UpstreamDefaultInstall{Code: EApplicationActivationTimedOut}
	}
	return Ready{Process: proc, Timeout: c.timeout}
}

func (c *Controller) startGui(cli string) State {
	proc, err := c.policy.StartInstallerAsync(cli)
	if err != nil || proc == nil {
		logger.Printf("Failed to launch the installer: %v", err)
		return UpstreamDefaultInstall{Code: EHandle}
	}
	// the window shows up before the server is ready
	win := c.policy.TryHidingInstallerWindow(HideWindowAttempt)
	if !c.policy.PollSuccess(ReadinessProbe, GuiPollAttempts, proc) {
		return UpstreamDefaultInstall{Code: EApplicationActivationTimedOut}
	}
	return Ready{Process: proc, Window: win, Timeout: c.timeout}
}

func (c *Controller) blockOnReady(s Ready) State {
	if s.Window != 0 {
		c.policy.ShowWindow(s.Window)
	}
	if code := c.policy.ConsumeProcess(s.Process, s.Timeout); code != 0 {
		logger.Printf("Installer process exited with %d", code)
		return UpstreamDefaultInstall{Code: EAbort}
	}
	c.policy.HandleExitStatus()
	return Success{}
}
