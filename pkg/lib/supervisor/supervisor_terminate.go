package supervisor

import (
	"time"
)

// Terminate unsubscribes from the exit notification and then kills the process, so the listener
// never fires for it. It returns once the exit was observed or after a short grace period.
func (p *Process) Terminate() error {
	p.Unsubscribe()

	p.mu.RLock()
	cmd := p.cmd
	p.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}

	select {
	case <-p.done:
		return nil
	default:
	}

	logger.Printf("Terminating process %s", p.id)
	if err := kill(cmd.Process); err != nil {
		select {
		case <-p.done:
			return nil
		default:
		}
		return err
	}

	// Return status after it transitions; small wait loop
	deadline := time.NewTimer(time.Second)
	defer deadline.Stop()
	select {
	case <-p.done:
	case <-deadline.C:
		logger.Printf("Process %s still running after kill", p.id)
	}
	return nil
}
