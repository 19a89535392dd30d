package installer

import (
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

// Command lines understood by the installer.
const (
	OobeCommand     = "sudo /usr/libexec/wsl-setup"
	TextFlag        = "--text"
	AutoinstallFlag = "--autoinstall"
	ReconfigureFlag = "--reconfigure"

	// Succeeds once the installer server socket is listening.
	ReadinessProbe = "ss -lx | grep subiquity &>/dev/null"
	// Succeeds when the installer server reached a final state.
	ServerStateCheck = "grep -E 'EXITED|DONE' /run/subiquity/server-state"

	autoinstallDir = "/var/tmp/"
)

// Polling and window discovery budgets.
const (
	TuiPollAttempts   = 50
	GuiPollAttempts   = 8
	HideWindowAttempt = 1000
)

// Process is a launched installer. It must be consumed exactly once.
type Process interface {
	WaitExitSync(timeout time.Duration) (int, error)
	Terminate() error
}

// Policy performs every OS interaction on behalf of the Controller.
type Policy interface {
	IsOOBEAvailable() bool
	// PreparePrefillInfo returns the command line suffix pointing to seed data, or "".
	PreparePrefillInfo() string
	MustRunInTextMode() bool
	// HandleExitStatus acts on the instructions the installer left behind.
	HandleExitStatus()
	CopyFileIntoDistro(from, to string) bool
	// PollSuccess runs command up to attempts times until it exits 0. On exhaustion monitored is
	// terminated and false is returned.
	PollSuccess(command string, attempts int, monitored Process) bool
	// ConsumeProcess waits for p to exit and returns its exit code. p must not be used afterwards.
	ConsumeProcess(p Process, timeout time.Duration) int
	StartInstallerAsync(cli string) (Process, error)
	// DoLaunchSync runs cli to completion and returns its exit code.
	DoLaunchSync(cli string) int
	TryHidingInstallerWindow(attempts int) window.Handle
	ShowWindow(h window.Handle)
}
