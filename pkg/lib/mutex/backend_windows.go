//go:build windows

package mutex

import (
	"golang.org/x/sys/windows"
)

// Named Win32 mutexes belong to the acquiring thread, which goroutines do not pin. An auto-reset
// event gives the same cross-process exclusion without thread affinity: signaled means free.
type eventBackend struct{}

func newOSBackend() Backend {
	return eventBackend{}
}

func (eventBackend) Create(name string) (Handle, error) {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	h, err := windows.CreateEvent(nil, 0, 1, name16)
	if err != nil && err != windows.ERROR_ALREADY_EXISTS {
		return 0, err
	}
	return Handle(h), nil
}

func (eventBackend) Destroy(h Handle, _ string) error {
	return windows.CloseHandle(windows.Handle(h))
}

func (eventBackend) TryAcquire(h Handle, _ string) error {
	ev, err := windows.WaitForSingleObject(windows.Handle(h), 0)
	switch {
	case err != nil:
		return err
	case ev == windows.WAIT_OBJECT_0:
		return nil
	default:
		return ErrBusy
	}
}

func (eventBackend) Release(h Handle, _ string) error {
	return windows.SetEvent(windows.Handle(h))
}
