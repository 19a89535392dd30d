package console

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type chunk struct {
	data []byte
	next atomic.Pointer[chunk]
}

// Transcript is an append-only record of console output drained from the pipe read end.
// Readers walk it without locks; appends are serialized.
type Transcript struct {
	head *chunk

	mu   sync.Mutex
	tail *chunk

	changes *Broadcaster[struct{}]
}

// NewTranscript returns an empty transcript. Close it when no more output will come.
func NewTranscript() *Transcript {
	sentinel := &chunk{}
	return &Transcript{
		head:    sentinel,
		tail:    sentinel,
		changes: NewBroadcaster[struct{}](),
	}
}

// Write records a copy of p.
func (t *Transcript) Write(p []byte) (int, error) {
	if t == nil {
		return len(p), nil
	}
	if len(p) == 0 {
		return 0, nil
	}
	t.append(append([]byte(nil), p...))
	return len(p), nil
}

func (t *Transcript) append(data []byte) {
	c := &chunk{data: data}
	t.mu.Lock()
	t.tail.next.Store(c)
	t.tail = c
	t.mu.Unlock()
	t.changes.Publish(struct{}{})
}

// Close marks the end of the output. Live subscriptions finish once they caught up.
func (t *Transcript) Close() {
	if t == nil {
		return
	}
	t.changes.Stop()
}

// ForEach visits the recorded chunks in order until fn returns false.
func (t *Transcript) ForEach(fn func([]byte) bool) {
	if t == nil || fn == nil {
		return
	}
	for c := t.head.next.Load(); c != nil; c = c.next.Load() {
		if !fn(c.data) {
			return
		}
	}
}

// Bytes returns everything recorded so far.
func (t *Transcript) Bytes() []byte {
	var out []byte
	t.ForEach(func(b []byte) bool {
		out = append(out, b...)
		return true
	})
	return out
}

func (t *Transcript) String() string {
	return string(t.Bytes())
}

// Subscribe replays the recorded chunks and then follows new ones. The channel closes after
// Close once every chunk was delivered.
func (t *Transcript) Subscribe(capacity int) <-chan []byte {
	ch := make(chan []byte, capacity)
	notifier, err := t.changes.Subscribe()
	go t.follow(notifier, err == nil, ch)
	return ch
}

func (t *Transcript) follow(notifier chan struct{}, live bool, ch chan []byte) {
	defer close(ch)
	prev := t.head
	for {
		next := prev.next.Load()
		if next == nil {
			if !live {
				return
			}
			if _, ok := <-notifier; !ok {
				live = false
			}
			continue
		}
		prev = next
		ch <- next.data
	}
}

// Drain copies r into the transcript until EOF, an error, or ctx is done, then closes the
// transcript. Reading from a pipe with no writer left yields EOF.
func (t *Transcript) Drain(ctx context.Context, r io.Reader) error {
	defer t.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				_, _ = t.Write(buf[:n])
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
					err = nil
				}
				done <- err
				return
			}
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if f, ok := r.(interface{ SetReadDeadline(time.Time) error }); ok {
			_ = f.SetReadDeadline(time.Now())
		}
		return ctx.Err()
	}
}
