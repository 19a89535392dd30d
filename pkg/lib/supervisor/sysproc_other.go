//go:build !windows

package supervisor

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func sysProcAttr(options) *syscall.SysProcAttr {
	// New process group to manage children as a unit
	return &syscall.SysProcAttr{Setpgid: true}
}

func kill(proc *os.Process) error {
	// Kill the process group (negative PID means process group)
	if err := unix.Kill(-proc.Pid, unix.SIGKILL); err == nil {
		return nil
	}
	return proc.Kill()
}

func processAlive(pid int) bool {
	return pid > 0 && unix.Kill(pid, 0) == nil
}

// There is no console to wait for.
func waitForInputIdle(int, time.Duration) {}

// Threads are not addressable for window enumeration here.
func mainThreadID(int) uint32 {
	return 0
}
