//go:build windows

package pipe

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Prefix is demanded by the Win32 API for local named pipes.
const Prefix = `\\.\pipe\`

var (
	modkernel32       = windows.NewLazySystemDLL("kernel32.dll")
	procPeekNamedPipe = modkernel32.NewProc("PeekNamedPipe")
)

func securityAttributes(inherit bool) *windows.SecurityAttributes {
	sa := &windows.SecurityAttributes{InheritHandle: 0}
	sa.Length = uint32(unsafe.Sizeof(*sa))
	if inherit {
		sa.InheritHandle = 1
	}
	return sa
}

func createReadEnd(name string, inherit bool) (uintptr, error) {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return InvalidHandle, err
	}
	h, err := windows.CreateNamedPipe(name16,
		windows.PIPE_ACCESS_INBOUND,
		windows.PIPE_TYPE_MESSAGE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES,
		0, 0, 0,
		securityAttributes(inherit))
	if err != nil {
		return InvalidHandle, err
	}
	return uintptr(h), nil
}

func openWriteEnd(name string, read uintptr, inherit bool) (uintptr, error) {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return InvalidHandle, err
	}
	h, err := windows.CreateFile(name16, windows.GENERIC_WRITE, 0, securityAttributes(inherit),
		windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return InvalidHandle, err
	}
	// The client is already there, so this returns at once.
	if err := windows.ConnectNamedPipe(windows.Handle(read), nil); err != nil && !errors.Is(err, windows.ERROR_PIPE_CONNECTED) {
		logger.Printf("ConnectNamedPipe on %s: %v", name, err)
	}
	return uintptr(h), nil
}

func duplicate(h uintptr, inherit bool) (uintptr, error) {
	var dup windows.Handle
	self := windows.CurrentProcess()
	err := windows.DuplicateHandle(self, windows.Handle(h), self, &dup, 0, inherit, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return InvalidHandle, err
	}
	return uintptr(dup), nil
}

func closeHandle(h uintptr) {
	_ = windows.CloseHandle(windows.Handle(h))
}

func disconnect(read uintptr) error {
	if read == InvalidHandle {
		return ErrInvalidHandle
	}
	return windows.DisconnectNamedPipe(windows.Handle(read))
}

func removeName(string) {}

func alive(h uintptr) bool {
	var flags uint32
	return windows.GetHandleInformation(windows.Handle(h), &flags) == nil
}

// Available returns how many bytes can be read from the read end without blocking.
func (p *Pipe) Available() (int, error) {
	p.mu.Lock()
	read := p.read
	p.mu.Unlock()

	var avail uint32
	r, _, err := procPeekNamedPipe.Call(read, 0, 0, 0, uintptr(unsafe.Pointer(&avail)), 0)
	if r == 0 {
		return 0, err
	}
	return int(avail), nil
}
