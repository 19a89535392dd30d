package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib"
)

// Start creates the process and arms the exit subscription. It fails if the process is already
// gone by the time it returns.
func (p *Process) Start() error {
	if p.command.Command == "" {
		return errors.New("command is required")
	}

	p.mu.Lock()
	if p.cmd != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	cmd := exec.Command(p.command.Command, p.command.Args...)
	p.cmd = cmd
	p.mu.Unlock()

	cmd.Dir = p.opts.dir
	if len(p.opts.env) > 0 {
		cmd.Env = append(os.Environ(), p.opts.env...)
	}
	// nil streams are connected to the null device
	if p.opts.stdin != nil {
		cmd.Stdin = p.opts.stdin
	}
	if p.opts.stdout != nil {
		cmd.Stdout = p.opts.stdout
	}
	if p.opts.stderr != nil {
		cmd.Stderr = p.opts.stderr
	}
	cmd.SysProcAttr = sysProcAttr(p.opts)

	logger.Printf("Starting process %s: %s", p.id, p.command.Command)
	if err := cmd.Start(); err != nil {
		logger.Printf("Failed to start process %s: %v", p.id, err)
		p.mu.Lock()
		p.cmd = nil
		p.mu.Unlock()
		return fmt.Errorf("failed to start %s: %w", p.command.Command, err)
	}

	p.listenerMu.Lock()
	p.subscribed = true
	p.listenerMu.Unlock()

	p.mu.Lock()
	p.pid = cmd.Process.Pid
	p.state = lib.ProcessStateRunning
	p.start = time.Now()
	p.mu.Unlock()

	if p.opts.newConsole {
		waitForInputIdle(cmd.Process.Pid, inputIdleTimeout)
	}
	tid := mainThreadID(cmd.Process.Pid)
	p.mu.Lock()
	p.threadID = tid
	p.mu.Unlock()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()
	go p.wait(waitErr)

	if !p.alive() {
		p.Unsubscribe()
		return ErrExitedEarly
	}
	return nil
}

// Waiter
func (p *Process) wait(waitErr <-chan error) {
	err := <-waitErr

	code := exitCodeFrom(err)
	if err != nil {
		logger.Printf("Process %s finished with err: %v", p.id, err)
	} else {
		logger.Printf("Process %s finished without error", p.id)
	}

	p.mu.Lock()
	p.exitCode = &code
	now := time.Now()
	p.end = &now
	p.state = lib.ProcessStateStopped
	pid := p.pid
	p.mu.Unlock()
	close(p.done)

	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	if !p.subscribed {
		return
	}
	p.subscribed = false
	listener := p.listener
	p.listener = nil

	logger.Printf("Process %s exited unexpectedly with code %d", p.id, code)
	if listener != nil {
		listener(code)
	}
	select {
	case p.exits <- Exit{ID: p.id, PID: pid, ExitCode: code}:
	default:
	}
}

func exitCodeFrom(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return lib.ExitCodeCrashed
}

func (p *Process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	return processAlive(p.PID())
}
