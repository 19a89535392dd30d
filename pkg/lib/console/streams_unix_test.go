//go:build !windows

package console

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestApplyKeepsStderrWhenStdoutCannotMove(t *testing.T) {
	var before unix.Stat_t
	require.NoError(t, unix.Fstat(unix.Stderr, &before))

	f, err := os.Create(filepath.Join(t.TempDir(), "stderr"))
	require.NoError(t, err)
	defer f.Close()

	stdout, stderr := os.Stdout, os.Stderr
	err = OSStreams().Apply(Snapshot{StdoutFd: ^uintptr(0), StderrFd: f.Fd()})
	require.Error(t, err)

	var after unix.Stat_t
	require.NoError(t, unix.Fstat(unix.Stderr, &after))
	assert.Equal(t, before.Dev, after.Dev)
	assert.Equal(t, before.Ino, after.Ino)
	assert.Same(t, stdout, os.Stdout)
	assert.Same(t, stderr, os.Stderr)
}
