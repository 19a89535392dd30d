// Package pipe wraps a local named pipe with a fixed read end and a write end that can be
// opened, closed and reopened on demand.
package pipe

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

var logger = log.New(io.Discard, "pipe: ", log.LstdFlags)

// SetLogger redirects the package logs.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

const (
	// MaxNameLength bounds the full pipe name, prefix included.
	MaxNameLength = 256
	// DefaultName replaces names that normalize to nothing.
	DefaultName = "LOCAL"

	maxSuffixLength = MaxNameLength - len(Prefix)
	maxReopenTries  = 16

	// InvalidHandle is INVALID_HANDLE_VALUE on Windows and descriptor -1 elsewhere.
	InvalidHandle = ^uintptr(0)
)

var (
	ErrInvalidHandle = errors.New("invalid pipe handle")
	ErrClosed        = errors.New("pipe is closed")
)

// NameFrom builds a valid pipe name: backslashes are removed, the result is truncated so that
// Prefix plus the name fit in MaxNameLength, and an empty result becomes DefaultName.
func NameFrom(name string) string {
	name = strings.ReplaceAll(name, `\`, "")
	if len(name) > maxSuffixLength {
		name = name[:maxSuffixLength]
	}
	if name == "" {
		name = DefaultName
	}
	return Prefix + name
}

// Options control handle inheritance by child processes.
type Options struct {
	InheritRead  bool
	InheritWrite bool
}

// Pipe is a named pipe owned by this process.
//
// The read end lives as long as the Pipe. The write end is opened lazily by WriteHandle or
// WriteFile and released by CloseWriteHandles; a reopened write end never reuses handle or
// descriptor values handed out before.
type Pipe struct {
	name string
	opts Options

	mu        sync.Mutex
	read      uintptr
	readFile  *os.File
	write     uintptr
	writeFile *os.File
	retired   map[uintptr]struct{}
	closed    bool
}

// New creates the pipe and its read end.
func New(name string, opts Options) (*Pipe, error) {
	full := NameFrom(name)
	read, err := createReadEnd(full, opts.InheritRead)
	if err != nil {
		return nil, fmt.Errorf("failed to create a pipe named %s: %w", full, err)
	}
	logger.Printf("Created pipe %s", full)
	return &Pipe{
		name:    full,
		opts:    opts,
		read:    read,
		write:   InvalidHandle,
		retired: make(map[uintptr]struct{}),
	}, nil
}

// Name returns the normalized OS name of the pipe.
func (p *Pipe) Name() string {
	return p.name
}

// ReadHandle returns the OS handle of the read end.
func (p *Pipe) ReadHandle() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}

// ReadFile returns the read end as an *os.File. The Pipe keeps ownership of it.
func (p *Pipe) ReadFile() (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.readFile == nil {
		p.readFile = os.NewFile(p.read, p.name)
	}
	return p.readFile, nil
}

// WriteHandle opens the write end if needed and returns its OS handle.
func (p *Pipe) WriteHandle() (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.openWriteEnd(); err != nil {
		return InvalidHandle, err
	}
	return p.write, nil
}

// WriteFile opens the write end if needed and returns the descriptor side of it. Its Fd is
// distinct from the value returned by WriteHandle.
func (p *Pipe) WriteFile() (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.openWriteEnd(); err != nil {
		return nil, err
	}
	return p.writeFile, nil
}

// WriteFileDescriptor is WriteFile reduced to its raw descriptor value.
func (p *Pipe) WriteFileDescriptor() (uintptr, error) {
	f, err := p.WriteFile()
	if err != nil {
		return InvalidHandle, err
	}
	return f.Fd(), nil
}

func (p *Pipe) openWriteEnd() error {
	if p.closed {
		return ErrClosed
	}
	if p.write != InvalidHandle && p.writeFile != nil {
		return nil
	}

	// Values still referenced by callers that held the previous write end must not come back.
	var held []uintptr
	defer func() {
		for _, h := range held {
			closeHandle(h)
		}
	}()

	for try := 0; try < maxReopenTries; try++ {
		h, err := openWriteEnd(p.name, p.read, p.opts.InheritWrite)
		if err != nil {
			return fmt.Errorf("failed to open the write end of %s: %w", p.name, err)
		}
		if p.isRetired(h) {
			held = append(held, h)
			continue
		}
		dup, err := duplicate(h, p.opts.InheritWrite)
		if err != nil {
			closeHandle(h)
			return fmt.Errorf("failed to duplicate the write end of %s: %w", p.name, err)
		}
		if p.isRetired(dup) {
			held = append(held, h, dup)
			continue
		}
		p.write = h
		p.writeFile = os.NewFile(dup, p.name)
		return nil
	}
	return fmt.Errorf("%w: could not obtain a fresh write end for %s", ErrInvalidHandle, p.name)
}

func (p *Pipe) isRetired(h uintptr) bool {
	_, ok := p.retired[h]
	return ok
}

// CloseWriteHandles releases both the handle and the descriptor of the write end.
// A later WriteHandle or WriteFile opens a fresh one.
func (p *Pipe) CloseWriteHandles() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeWriteHandles()
}

func (p *Pipe) closeWriteHandles() {
	if p.writeFile != nil {
		p.retired[p.writeFile.Fd()] = struct{}{}
		_ = p.writeFile.Close()
		p.writeFile = nil
	}
	if p.write != InvalidHandle {
		p.retired[p.write] = struct{}{}
		closeHandle(p.write)
		p.write = InvalidHandle
	}
}

// Disconnect drops the client side connection from the read end.
func (p *Pipe) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return disconnect(p.read)
}

// Close releases every handle owned by the pipe. It is safe to call more than once.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.closeWriteHandles()
	_ = disconnect(p.read)

	var err error
	if p.readFile != nil {
		err = p.readFile.Close()
		p.readFile = nil
	} else {
		closeHandle(p.read)
	}
	p.read = InvalidHandle
	removeName(p.name)
	logger.Printf("Closed pipe %s", p.name)
	return err
}

// Alive reports whether h still refers to an open OS object.
func Alive(h uintptr) bool {
	if h == InvalidHandle {
		return false
	}
	return alive(h)
}
