package installer

import (
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

// State is one of Closed, AutoInstalling, PreparedGui, PreparedTui, Ready,
// UpstreamDefaultInstall or Success.
type State interface {
	installerState()
}

// Closed is the initial state: the installer is not running.
type Closed struct{}

// AutoInstalling holds the text mode command line that performs an unattended install.
type AutoInstalling struct {
	CLI string
}

// PreparedGui holds the command line of an installer that may run graphically.
type PreparedGui struct {
	CLI string
}

// PreparedTui holds the command line of an installer that must run in the terminal.
type PreparedTui struct {
	CLI string
}

// Ready means the installer was launched and is accepting user input.
// Process is consumed by the next BlockOnInstaller. Window is zero when unknown.
type Ready struct {
	Process Process
	Window  window.Handle
	// zero waits without bound
	Timeout time.Duration
}

// UpstreamDefaultInstall is terminal: the new workflow cannot run and the caller should fall back
// to the plain distro registration.
type UpstreamDefaultInstall struct {
	Code Code
}

// Success is terminal.
type Success struct{}

func (Closed) installerState()                 {}
func (AutoInstalling) installerState()         {}
func (PreparedGui) installerState()            {}
func (PreparedTui) installerState()            {}
func (Ready) installerState()                  {}
func (UpstreamDefaultInstall) installerState() {}
func (Success) installerState()                {}
