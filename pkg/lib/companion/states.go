package companion

import "github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"

// State is one of Closed, Visible, Hidden or ShouldBeClosed.
type State interface {
	companionState()
}

// Closed is the initial state: no companion is running.
type Closed struct{}

// Visible holds the companion window while it is shown.
type Visible struct {
	Window window.Handle
}

// Hidden holds the companion window while it is hidden.
type Hidden struct {
	Window window.Handle
}

// ShouldBeClosed is terminal. The close request was posted but nobody checks it was honored.
type ShouldBeClosed struct{}

func (Closed) companionState()         {}
func (Visible) companionState()        {}
func (Hidden) companionState()         {}
func (ShouldBeClosed) companionState() {}

// Event is one of Run, ToggleVisibility, PlaceBehind or Close.
type Event interface {
	companionEvent()
}

// Run launches the companion and looks for its window.
type Run struct{}

// ToggleVisibility hides a visible window or shows a hidden one.
type ToggleVisibility struct{}

// PlaceBehind shows a hidden window right behind Front.
type PlaceBehind struct {
	Front window.Handle
}

// Close asks the companion to go away.
type Close struct{}

func (Run) companionEvent()              {}
func (ToggleVisibility) companionEvent() {}
func (PlaceBehind) companionEvent()      {}
func (Close) companionEvent()            {}
