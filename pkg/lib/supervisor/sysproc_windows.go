//go:build windows

package supervisor

import (
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	moduser32            = windows.NewLazySystemDLL("user32.dll")
	procWaitForInputIdle = moduser32.NewProc("WaitForInputIdle")
)

func sysProcAttr(o options) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{}
	if o.newConsole {
		attr.CreationFlags |= windows.CREATE_NEW_CONSOLE
	}
	return attr
}

func kill(proc *os.Process) error {
	return proc.Kill()
}

func openProcess(pid int) (windows.Handle, error) {
	return windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.SYNCHRONIZE, false, uint32(pid))
}

func processAlive(pid int) bool {
	h, err := openProcess(pid)
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == uint32(windows.STILL_ACTIVE)
}

func waitForInputIdle(pid int, timeout time.Duration) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		return
	}
	defer windows.CloseHandle(h)
	_, _, _ = procWaitForInputIdle.Call(uintptr(h), uintptr(timeout.Milliseconds()))
}

// mainThreadID returns the first thread found for pid, which is the main one for a process that
// was just created.
func mainThreadID(pid int) uint32 {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return 0
	}
	defer windows.CloseHandle(snap)

	var entry windows.ThreadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Thread32First(snap, &entry); err == nil; err = windows.Thread32Next(snap, &entry) {
		if entry.OwnerProcessID == uint32(pid) {
			return entry.ThreadID
		}
	}
	return 0
}
