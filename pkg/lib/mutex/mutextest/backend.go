// Package mutextest provides an in-memory mutex.Backend for tests.
package mutextest

import (
	"errors"
	"sync"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/mutex"
)

// ErrUnknown is returned when destroying a name the backend never created.
var ErrUnknown = errors.New("destroyed a non-existing mutex")

// Entry is the fake OS object behind a name.
type Entry struct {
	Name     string
	Locked   bool
	Refcount int
}

// Backend keeps a registry of fake mutexes, refcounted like the OS would.
// Each test owns its Backend; nothing is shared between tests.
type Backend struct {
	mu      sync.Mutex
	entries map[mutex.Handle]*Entry
	byName  map[string]mutex.Handle
	next    mutex.Handle
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		entries: make(map[mutex.Handle]*Entry),
		byName:  make(map[string]mutex.Handle),
	}
}

// Mangle is the naming convention fake backends were written against. It matches
// mutex.MangleName for the given distro and is kept separate so tests can assert on
// raw registry names without going through the package under test.
func Mangle(distro, name string) string {
	return "WSL_" + distro + "_" + name
}

func (b *Backend) Create(name string) (mutex.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.byName[name]; ok {
		b.entries[h].Refcount++
		return h, nil
	}
	b.next++
	h := b.next
	b.entries[h] = &Entry{Name: name, Refcount: 1}
	b.byName[name] = h
	return h, nil
}

func (b *Backend) Destroy(_ mutex.Handle, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.byName[name]
	if !ok {
		return ErrUnknown
	}
	e := b.entries[h]
	e.Refcount--
	if e.Refcount == 0 {
		delete(b.entries, h)
		delete(b.byName, name)
	}
	return nil
}

func (b *Backend) TryAcquire(h mutex.Handle, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[h]
	if !ok {
		return ErrUnknown
	}
	if e.Locked {
		return mutex.ErrBusy
	}
	e.Locked = true
	return nil
}

func (b *Backend) Release(h mutex.Handle, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[h]; ok {
		e.Locked = false
	}
	return nil
}

// Lookup returns a copy of the entry registered under the mangled name.
func (b *Backend) Lookup(name string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.byName[name]
	if !ok {
		return Entry{}, false
	}
	return *b.entries[h], true
}

// SetLocked flips the lock bit of a registered name, simulating another process.
func (b *Backend) SetLocked(name string, locked bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.byName[name]
	if !ok {
		return false
	}
	b.entries[h].Locked = locked
	return true
}

// Len returns how many names are registered.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Reset drops every entry except those whose unmangled names are listed in keep. Kept names
// go through mutex.MangleName, so they follow the current mutex.DistroName.
func (b *Backend) Reset(keep ...string) {
	kept := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		kept[mutex.MangleName(k)] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, h := range b.byName {
		if _, ok := kept[name]; ok {
			continue
		}
		delete(b.byName, name)
		delete(b.entries, h)
	}
}
