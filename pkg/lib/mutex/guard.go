package mutex

import "time"

// DefaultGuardTimeout bounds how long a Guard waits before giving up.
const DefaultGuardTimeout = 5 * time.Second

// Guard is an in-process mutex whose acquisition can time out. Shared state touched by both
// the control goroutine and exit notifications is protected by one, so that a stuck holder
// turns into a skipped operation instead of a deadlock.
type Guard struct {
	ch chan struct{}
}

// NewGuard returns an unlocked Guard.
func NewGuard() *Guard {
	return &Guard{ch: make(chan struct{}, 1)}
}

// TryLockFor waits at most d for the guard. It reports whether the guard was acquired.
func (g *Guard) TryLockFor(d time.Duration) bool {
	select {
	case g.ch <- struct{}{}:
		return true
	default:
	}
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case g.ch <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// Unlock releases the guard. Unlocking an unlocked guard does nothing.
func (g *Guard) Unlock() {
	select {
	case <-g.ch:
	default:
	}
}

// Do runs fn holding the guard. When the guard cannot be taken within d, fn is skipped, the
// skip is logged under what, and false is returned.
func (g *Guard) Do(what string, d time.Duration, fn func()) bool {
	if !g.TryLockFor(d) {
		logger.Printf("Timed out after %s waiting for the guard; skipping %s", d, what)
		return false
	}
	defer g.Unlock()
	fn()
	return true
}
