// Package window wraps the few top-level window calls the launcher needs.
// On platforms without a window manager binding every call fails with ErrUnsupported.
package window

import "errors"

// Handle is an HWND.
type Handle uintptr

var (
	ErrUnsupported = errors.New("window operations are not supported on this platform")
	ErrNotFound    = errors.New("window not found")
)

// Console host window class used by Windows Terminal.
const TerminalClass = "CASCADIA_HOSTING_WINDOW_CLASS"

// Ops is the window manager surface used by controllers. Tests replace it with fakes.
type Ops interface {
	Show(h Handle) bool
	Hide(h Handle) bool
	// PlaceBehind shows h without activating it, right behind front.
	PlaceBehind(h, front Handle) bool
	// Close asks the window to close gracefully.
	Close(h Handle) bool
	// Quit posts a quit request that does not need the window to be visible.
	Quit(h Handle) bool
	// Find returns the top-level window matching both class and title.
	Find(class, title string) (Handle, error)
	// FindOnThread returns the first visible top-level window of the given class owned by threadID.
	FindOnThread(threadID uint32, class string) (Handle, error)
}

// System returns the platform implementation of Ops.
func System() Ops {
	return systemOps{}
}
