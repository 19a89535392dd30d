//go:build !windows

package console

import (
	"os"

	"golang.org/x/sys/unix"
)

// osStreams binds descriptors 1 and 2 and the os.Stdout/os.Stderr variables, which play the
// role of the standard handle slots.
type osStreams struct {
	// files created by Apply for pipe snapshots, closed once replaced
	owned []*os.File
}

// OSStreams returns the process standard streams.
func OSStreams() Streams {
	return &osStreams{}
}

func (s *osStreams) Handles() (uintptr, uintptr) {
	return os.Stdout.Fd(), os.Stderr.Fd()
}

func (s *osStreams) Current() (Snapshot, error) {
	out, err := unix.Dup(unix.Stdout)
	if err != nil {
		return Snapshot{}, err
	}
	errFd, err := unix.Dup(unix.Stderr)
	if err != nil {
		_ = unix.Close(out)
		return Snapshot{}, err
	}
	return Snapshot{
		StdoutFd:     uintptr(out),
		StderrFd:     uintptr(errFd),
		StdoutHandle: os.Stdout.Fd(),
		StderrHandle: os.Stderr.Fd(),
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}, nil
}

func (s *osStreams) Apply(snap Snapshot) error {
	backup, err := unix.Dup(unix.Stderr)
	if err != nil {
		return err
	}
	defer unix.Close(backup)

	if err := unix.Dup2(int(snap.StderrFd), unix.Stderr); err != nil {
		return err
	}
	if err := unix.Dup2(int(snap.StdoutFd), unix.Stdout); err != nil {
		// both descriptors move or none does
		if rerr := unix.Dup2(backup, unix.Stderr); rerr != nil {
			logger.Printf("Could not restore stderr: %v", rerr)
		}
		return err
	}

	previous := s.owned
	s.owned = nil
	if snap.stdout != nil && snap.stderr != nil {
		os.Stdout, os.Stderr = snap.stdout, snap.stderr
	} else {
		stdout, err := s.own(snap.StdoutHandle, "stdout")
		if err != nil {
			return err
		}
		stderr, err := s.own(snap.StderrHandle, "stderr")
		if err != nil {
			return err
		}
		os.Stdout, os.Stderr = stdout, stderr
	}
	for _, f := range previous {
		_ = f.Close()
	}
	return nil
}

func (s *osStreams) own(h uintptr, name string) (*os.File, error) {
	fd, err := unix.FcntlInt(h, unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(fd), name)
	s.owned = append(s.owned, f)
	return f, nil
}

func (s *osStreams) Release(snap Snapshot) {
	_ = unix.Close(int(snap.StdoutFd))
	_ = unix.Close(int(snap.StderrFd))
}

func (s *osStreams) Flush() {
	// Sync fails with EINVAL on pipes and terminals, nothing is lost then.
	_ = os.Stdout.Sync()
	_ = os.Stderr.Sync()
}
