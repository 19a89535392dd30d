package supervisor

import (
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib"
)

// SetListener registers fn to be called once with the exit code if the process terminates
// unexpectedly. It replaces a previously set listener. fn runs on the waiter goroutine and must
// not call back into the Process.
func (p *Process) SetListener(fn func(exitCode int)) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	p.listener = fn
}

// Unsubscribe disarms the exit notification. When it returns, the listener is not running and
// will not run.
func (p *Process) Unsubscribe() {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	p.subscribed = false
	p.listener = nil
}

// WaitExitSync blocks until the process exits or timeout elapses and returns its exit code.
// A non-positive timeout waits without bound.
func (p *Process) WaitExitSync(timeout time.Duration) (int, error) {
	p.mu.RLock()
	started := p.cmd != nil
	p.mu.RUnlock()
	if !started {
		return 0, ErrNotStarted
	}

	if timeout <= 0 {
		<-p.done
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			return lib.ExitCodeActive, ErrWaitTimeout
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.exitCode, nil
}
