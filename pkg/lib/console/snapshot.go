package console

import "os"

// Snapshot identifies the bindings of the standard output and error streams.
//
// Fd fields are descriptors duplicated for the snapshot (on Windows, duplicated handles) and
// are expected to differ between two snapshots of the same binding, which is why Equal only
// looks at the handles.
type Snapshot struct {
	StdoutFd     uintptr
	StderrFd     uintptr
	StdoutHandle uintptr
	StderrHandle uintptr

	// Go level stream objects active when the snapshot was taken; nil for snapshots built
	// from a pipe.
	stdout *os.File
	stderr *os.File
}

// Equal reports whether both snapshots bind the streams to the same handles.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.StdoutHandle == other.StdoutHandle && s.StderrHandle == other.StderrHandle
}

// Streams is the process-wide binding of stdout and stderr.
type Streams interface {
	// Handles returns the current handles only, without duplicating anything.
	Handles() (stdout, stderr uintptr)
	// Current snapshots the binding. The caller owns the duplicated descriptors in it.
	Current() (Snapshot, error)
	// Apply binds both streams to the snapshot.
	Apply(s Snapshot) error
	// Release closes the descriptors duplicated by Current.
	Release(s Snapshot)
	// Flush pushes pending output of both streams.
	Flush()
}
