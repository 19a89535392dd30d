//go:build windows

package console

import (
	"os"

	"golang.org/x/sys/windows"
)

type osStreams struct {
	owned        []*os.File
	ownedHandles []windows.Handle
}

// OSStreams returns the process standard streams.
func OSStreams() Streams {
	return &osStreams{}
}

func duplicate(h uintptr) (windows.Handle, error) {
	var dup windows.Handle
	self := windows.CurrentProcess()
	err := windows.DuplicateHandle(self, windows.Handle(h), self, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
	return dup, err
}

func (s *osStreams) Handles() (uintptr, uintptr) {
	out, _ := windows.GetStdHandle(windows.STD_OUTPUT_HANDLE)
	errH, _ := windows.GetStdHandle(windows.STD_ERROR_HANDLE)
	return uintptr(out), uintptr(errH)
}

func (s *osStreams) Current() (Snapshot, error) {
	out, errH := s.Handles()
	outDup, err := duplicate(out)
	if err != nil {
		return Snapshot{}, err
	}
	errDup, err := duplicate(errH)
	if err != nil {
		_ = windows.CloseHandle(outDup)
		return Snapshot{}, err
	}
	return Snapshot{
		StdoutFd:     uintptr(outDup),
		StderrFd:     uintptr(errDup),
		StdoutHandle: out,
		StderrHandle: errH,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}, nil
}

func (s *osStreams) Apply(snap Snapshot) error {
	previous, previousHandles := s.owned, s.ownedHandles
	s.owned, s.ownedHandles = nil, nil

	if snap.stdout != nil && snap.stderr != nil {
		if err := windows.SetStdHandle(windows.STD_ERROR_HANDLE, windows.Handle(snap.StderrHandle)); err != nil {
			return err
		}
		if err := windows.SetStdHandle(windows.STD_OUTPUT_HANDLE, windows.Handle(snap.StdoutHandle)); err != nil {
			return err
		}
		os.Stdout, os.Stderr = snap.stdout, snap.stderr
	} else {
		// The pipe closes its own write handles right after redirection, so the slots get copies.
		errSlot, err := duplicate(snap.StderrHandle)
		if err != nil {
			return err
		}
		outSlot, err := duplicate(snap.StdoutHandle)
		if err != nil {
			_ = windows.CloseHandle(errSlot)
			return err
		}
		s.ownedHandles = append(s.ownedHandles, errSlot, outSlot)
		if err := windows.SetStdHandle(windows.STD_ERROR_HANDLE, errSlot); err != nil {
			return err
		}
		if err := windows.SetStdHandle(windows.STD_OUTPUT_HANDLE, outSlot); err != nil {
			return err
		}

		outFile, err := duplicate(snap.StdoutFd)
		if err != nil {
			return err
		}
		errFile, err := duplicate(snap.StderrFd)
		if err != nil {
			_ = windows.CloseHandle(outFile)
			return err
		}
		stdout := os.NewFile(uintptr(outFile), "stdout")
		stderr := os.NewFile(uintptr(errFile), "stderr")
		s.owned = append(s.owned, stdout, stderr)
		os.Stdout, os.Stderr = stdout, stderr
	}

	for _, f := range previous {
		_ = f.Close()
	}
	for _, h := range previousHandles {
		_ = windows.CloseHandle(h)
	}
	return nil
}

func (s *osStreams) Release(snap Snapshot) {
	_ = windows.CloseHandle(windows.Handle(snap.StdoutFd))
	_ = windows.CloseHandle(windows.Handle(snap.StderrFd))
}

func (s *osStreams) Flush() {
	_ = os.Stdout.Sync()
	_ = os.Stderr.Sync()
}
