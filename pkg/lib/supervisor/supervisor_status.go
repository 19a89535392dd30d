package supervisor

import (
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib"
)

// Status returns a copy of the current process status.
func (p *Process) Status() lib.ProcessStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := lib.ProcessStatus{State: p.state, StartTime: p.start}
	if p.exitCode != nil {
		st.ExitCode = new(int)
		*st.ExitCode = *p.exitCode
	}
	if p.end != nil {
		t := *p.end
		st.EndTime = &t
	}
	return st
}

// Valid reports whether the process was started and has not exited yet.
func (p *Process) Valid() bool {
	p.mu.RLock()
	started := p.cmd != nil && p.pid != 0
	p.mu.RUnlock()
	return started && p.alive()
}
