//go:build !windows

package pipe

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Prefix places the FIFOs backing named pipes in the temporary directory.
const Prefix = "/tmp/"

func openFlags(base int, inherit bool) int {
	if !inherit {
		base |= unix.O_CLOEXEC
	}
	return base
}

func createReadEnd(name string, inherit bool) (uintptr, error) {
	err := unix.Mkfifo(name, 0o600)
	if errors.Is(err, unix.EEXIST) {
		_ = os.Remove(name)
		err = unix.Mkfifo(name, 0o600)
	}
	if err != nil {
		return InvalidHandle, err
	}
	// Non-blocking so opening does not wait for a writer.
	fd, err := unix.Open(name, openFlags(unix.O_RDONLY|unix.O_NONBLOCK, inherit), 0)
	if err != nil {
		_ = os.Remove(name)
		return InvalidHandle, err
	}
	return uintptr(fd), nil
}

func openWriteEnd(name string, _ uintptr, inherit bool) (uintptr, error) {
	fd, err := unix.Open(name, openFlags(unix.O_WRONLY, inherit), 0)
	if err != nil {
		return InvalidHandle, err
	}
	return uintptr(fd), nil
}

func duplicate(h uintptr, inherit bool) (uintptr, error) {
	cmd := unix.F_DUPFD_CLOEXEC
	if inherit {
		cmd = unix.F_DUPFD
	}
	fd, err := unix.FcntlInt(h, cmd, 0)
	if err != nil {
		return InvalidHandle, err
	}
	return uintptr(fd), nil
}

func closeHandle(h uintptr) {
	_ = unix.Close(int(h))
}

// FIFOs have no connection to drop.
func disconnect(read uintptr) error {
	if read == InvalidHandle {
		return ErrInvalidHandle
	}
	return nil
}

func removeName(name string) {
	_ = os.Remove(name)
}

func alive(h uintptr) bool {
	_, err := unix.FcntlInt(h, unix.F_GETFD, 0)
	return err == nil
}

// Available returns how many bytes can be read from the read end without blocking.
func (p *Pipe) Available() (int, error) {
	p.mu.Lock()
	read := p.read
	p.mu.Unlock()

	for {
		n, err := unix.IoctlGetInt(int(read), unix.TIOCINQ)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}
