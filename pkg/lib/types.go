package lib

import "time"

// ProcessState is the coarse lifecycle of a supervised child process.
type ProcessState int

const (
	ProcessStateUnspecified ProcessState = iota
	ProcessStateRunning
	ProcessStateStopped
)

func (s ProcessState) String() string {
	switch s {
	case ProcessStateRunning:
		return "Running"
	case ProcessStateStopped:
		return "Stopped"
	default:
		return "Unspecified"
	}
}

// Command captures the executable and arguments used to start a process.
type Command struct {
	Command string
	Args    []string
}

// ProcessStatus captures runtime state and timestamps.
type ProcessStatus struct {
	State     ProcessState
	ExitCode  *int
	StartTime time.Time
	EndTime   *time.Time
}

// Well known exit codes reported by the WSL API.
const (
	// ExitCodeWindowsError is returned when a WSL call failed before the Linux command ran.
	ExitCodeWindowsError = 4294967295
	// ExitCodeActive is STILL_ACTIVE, the code of a process that has not exited.
	ExitCodeActive = 259
	// ExitCodeCrashed marks a process that vanished without a regular exit.
	ExitCodeCrashed = -5
)
