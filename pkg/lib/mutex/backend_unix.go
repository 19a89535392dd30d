//go:build !windows

package mutex

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// flockBackend backs each name with a lock file in the temporary directory.
type flockBackend struct {
	dir string
}

func newOSBackend() Backend {
	return flockBackend{dir: os.TempDir()}
}

func (b flockBackend) path(name string) string {
	return filepath.Join(b.dir, name+".lock")
}

func (b flockBackend) Create(name string) (Handle, error) {
	fd, err := unix.Open(b.path(name), unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return 0, err
	}
	return Handle(fd), nil
}

func (flockBackend) Destroy(h Handle, _ string) error {
	return unix.Close(int(h))
}

func (flockBackend) TryAcquire(h Handle, _ string) error {
	err := unix.Flock(int(h), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrBusy
	}
	return err
}

func (flockBackend) Release(h Handle, _ string) error {
	return unix.Flock(int(h), unix.LOCK_UN)
}
