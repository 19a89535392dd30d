//go:build windows

package window

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	swHide          = 0
	swRestore       = 9
	swShowNA        = 8
	swpNoSize       = 0x0001
	swpNoMove       = 0x0002
	swpNoActivate   = 0x0010
	swpShowWindow   = 0x0040
	wmClose         = 0x0010
	wmQuit          = 0x0012
	gwlStyle        = -16
	wsVisible       = 0x10000000
	gwOwner         = 4
	classNameMaxLen = 256
)

var (
	moduser32   = windows.NewLazySystemDLL("user32.dll")
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowPos      = moduser32.NewProc("SetWindowPos")
	procPostMessageW      = moduser32.NewProc("PostMessageW")
	procEnumThreadWindows = moduser32.NewProc("EnumThreadWindows")
	procGetClassNameW     = moduser32.NewProc("GetClassNameW")
	procGetWindowLongW    = moduser32.NewProc("GetWindowLongW")
	procGetWindow         = moduser32.NewProc("GetWindow")
	procBringWindowToTop  = moduser32.NewProc("BringWindowToTop")
	procFindWindowW       = moduser32.NewProc("FindWindowW")
	procGetConsoleWindow  = modkernel32.NewProc("GetConsoleWindow")
)

type systemOps struct{}

func (systemOps) Show(h Handle) bool {
	windows.ShowWindow(windows.HWND(h), swRestore)
	r, _, _ := procBringWindowToTop.Call(uintptr(h))
	return r != 0
}

func (systemOps) Hide(h Handle) bool {
	return windows.ShowWindow(windows.HWND(h), swHide)
}

func (systemOps) PlaceBehind(h, front Handle) bool {
	windows.ShowWindow(windows.HWND(h), swShowNA)
	r, _, _ := procSetWindowPos.Call(uintptr(h), uintptr(front), 0, 0, 0, 0,
		swpNoMove|swpNoSize|swpNoActivate|swpShowWindow)
	return r != 0
}

func (systemOps) Close(h Handle) bool {
	r, _, _ := procPostMessageW.Call(uintptr(h), wmClose, 0, 0)
	return r != 0
}

func (systemOps) Quit(h Handle) bool {
	r, _, _ := procPostMessageW.Call(uintptr(h), wmQuit, 0, 0)
	return r != 0
}

func className(h uintptr) string {
	buf := make([]uint16, classNameMaxLen)
	n, _, _ := procGetClassNameW.Call(h, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:n])
}

func isTopLevelVisible(h uintptr) bool {
	owner, _, _ := procGetWindow.Call(h, gwOwner)
	if owner != 0 {
		return false
	}
	style, _, _ := procGetWindowLongW.Call(h, uintptr(gwlStyle&0xffffffff))
	return style&wsVisible != 0
}

func (systemOps) FindOnThread(threadID uint32, class string) (Handle, error) {
	var found uintptr
	cb := syscall.NewCallback(func(h uintptr, _ uintptr) uintptr {
		if className(h) == class && isTopLevelVisible(h) {
			found = h
			return 0
		}
		return 1
	})
	procEnumThreadWindows.Call(uintptr(threadID), cb, 0)
	if found == 0 {
		return 0, ErrNotFound
	}
	return Handle(found), nil
}

func findWindow(class, title string) uintptr {
	class16, err := windows.UTF16PtrFromString(class)
	if err != nil {
		return 0
	}
	title16, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0
	}
	h, _, _ := procFindWindowW.Call(uintptr(unsafe.Pointer(class16)), uintptr(unsafe.Pointer(title16)))
	return h
}

func (systemOps) Find(class, title string) (Handle, error) {
	if h := findWindow(class, title); h != 0 {
		return Handle(h), nil
	}
	return 0, ErrNotFound
}

// Console returns the window hosting this process console: the Windows Terminal window with the
// given title when there is one, otherwise the classic console window.
func Console(title string) Handle {
	if h := findWindow(TerminalClass, title); h != 0 {
		return Handle(h)
	}
	h, _, _ := procGetConsoleWindow.Call()
	return Handle(h)
}
