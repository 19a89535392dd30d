//go:build windows

package event

import (
	"golang.org/x/sys/windows"
)

func create(name string) (uintptr, error) {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	// manual reset, initially not signaled
	h, err := windows.CreateEvent(nil, 1, 0, name16)
	if err != nil && err != windows.ERROR_ALREADY_EXISTS {
		return 0, err
	}
	return uintptr(h), nil
}

func signal(h uintptr, _ string) error {
	return windows.SetEvent(windows.Handle(h))
}

func release(h uintptr, _ string) error {
	return windows.CloseHandle(windows.Handle(h))
}

func isSignaled(name string) bool {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return false
	}
	h, err := windows.OpenEvent(windows.SYNCHRONIZE, false, name16)
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	ev, err := windows.WaitForSingleObject(h, 0)
	return err == nil && ev == windows.WAIT_OBJECT_0
}
