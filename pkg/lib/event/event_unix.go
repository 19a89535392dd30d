//go:build !windows

package event

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// A fired event is a marker file in the temporary directory.
func markerPath(name string) string {
	return filepath.Join(os.TempDir(), strings.ReplaceAll(name, `\`, "_")+".event")
}

func create(name string) (uintptr, error) {
	if name == "" {
		return 0, ErrInvalid
	}
	return 0, nil
}

func signal(_ uintptr, name string) error {
	fd, err := unix.Open(markerPath(name), unix.O_CREAT|unix.O_WRONLY|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return err
	}
	return unix.Close(fd)
}

func release(uintptr, string) error {
	return nil
}

func isSignaled(name string) bool {
	_, err := os.Stat(markerPath(name))
	return err == nil
}
