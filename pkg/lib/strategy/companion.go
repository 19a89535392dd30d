package strategy

import (
	"context"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/companion"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/console"
)

// RunCompanion redirects the console into the companion and launches it. Any failure rolls the
// console back and the workflow goes on without a companion.
func (s *Strategy) RunCompanion(hideConsole bool) {
	if s.newCompanion == nil || s.newConsole == nil {
		logger.Printf("No companion configured")
		return
	}

	cons, read, err := s.newConsole()
	if err != nil {
		logger.Printf("Unable to prepare the console for the companion: %v", err)
		return
	}

	s.guard.Do("running the companion", s.guardTimeout, func() {
		s.console = cons
		s.consoleRead = read
		if _, err := cons.Redirect(); err != nil {
			logger.Printf("Failed to redirect the console: %v", err)
			return
		}

		comp := s.newCompanion(read)
		st, err := comp.AddEvent(companion.Run{})
		visible, ok := st.(companion.Visible)
		if err != nil || !ok {
			logger.Printf("Companion did not show up, restoring the console")
			if err := cons.Restore(); err != nil {
				logger.Printf("Restoring the console: %v", err)
			}
			return
		}

		s.companion = comp
		s.companionWindow = visible.Window
		s.companionRunning = true
		if hideConsole {
			s.consoleVisible = !cons.HideWindow()
		}
		s.watch(comp)
	})
}

// watch turns unexpected companion exits into a restored console.
func (s *Strategy) watch(comp Companion) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatch = cancel
	s.watchDone = make(chan struct{})
	go func() {
		defer close(s.watchDone)
		select {
		case ex := <-comp.Exits():
			logger.Printf("Companion (pid %d) exited unexpectedly with %d", ex.PID, ex.ExitCode)
			if s.onExit != nil {
				s.onExit(ex)
			}
			s.companionExited()
		case <-ctx.Done():
		}
	}()
}

func (s *Strategy) companionExited() {
	s.guard.Do("marking the companion dead", s.guardTimeout, func() {
		s.companionDied = true
	})
	s.showConsole()
}

// showConsole gives the console back to this process and shows its window behind the companion.
func (s *Strategy) showConsole() {
	s.guard.Do("restoring the console", s.guardTimeout, func() {
		if s.console == nil {
			return
		}
		if s.console.IsRedirected() && s.companionDied {
			// the pipe must stay connected until the leftover output is read
			if err := s.console.Detach(); err != nil {
				logger.Printf("Restoring the console: %v", err)
			}
			s.salvage()
		} else if err := s.console.Restore(); err != nil {
			logger.Printf("Restoring the console: %v", err)
		}
		if !s.consoleVisible {
			s.consoleVisible = s.console.ShowWindow(s.companionWindow)
		}
	})
}

// salvage replays what was written to the pipe but never consumed by the dead companion. The
// output is streamed to stdout while it is read.
func (s *Strategy) salvage() {
	if s.consoleRead == nil {
		return
	}
	if n, err := s.console.Pending(); err == nil && n == 0 {
		logger.Printf("No leftover output")
		return
	}

	t := console.NewTranscript()
	replayed := make(chan struct{})
	go func() {
		defer close(replayed)
		var werr error
		for b := range t.Subscribe(16) {
			if werr == nil {
				_, werr = s.stdout.Write(b)
			}
		}
		if werr != nil {
			logger.Printf("Replaying leftover output: %v", werr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), salvageTimeout)
	defer cancel()
	if err := t.Drain(ctx, s.consoleRead); err != nil {
		logger.Printf("Collecting leftover output: %v", err)
	}
	<-replayed
	s.transcript = t
}

// Salvaged returns what was recovered from the pipe after the companion died, nil if nothing was.
func (s *Strategy) Salvaged() *console.Transcript {
	var t *console.Transcript
	s.guard.Do("reading the salvaged output", s.guardTimeout, func() { t = s.transcript })
	return t
}

func (s *Strategy) toggleCompanion() {
	s.guard.Do("toggling the companion", s.guardTimeout, func() {
		if s.companion == nil || !s.companionRunning {
			return
		}
		if _, err := s.companion.AddEvent(companion.ToggleVisibility{}); err != nil {
			logger.Printf("Toggling the companion: %v", err)
		}
	})
}

// closeCompanion restores the console and asks the companion to close.
func (s *Strategy) closeCompanion() {
	s.showConsole()
	s.guard.Do("closing the companion", s.guardTimeout, func() {
		if !s.companionRunning {
			return
		}
		if s.closeEvent != nil && s.closeEvent.Set() {
			logger.Printf("Signaled %s", s.closeEvent.Name())
		}
		if _, err := s.companion.AddEvent(companion.Close{}); err != nil {
			logger.Printf("Closing the companion: %v", err)
		}
		s.companionRunning = false
		s.companionWindow = 0
	})
}

// Close closes the companion if still running and releases it.
func (s *Strategy) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closeCompanion()
		if s.stopWatch != nil {
			s.stopWatch()
			<-s.watchDone
		}
		if s.companion != nil {
			err = s.companion.Shutdown()
		}
		if s.consoleRead != nil {
			s.consoleRead.Close()
		}
		if s.closeEvent != nil {
			s.closeEvent.Close()
		}
	})
	return err
}
