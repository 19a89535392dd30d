package console

import (
	"errors"
	"sync"
)

var ErrBroadcasterStopped = errors.New("broadcaster is stopped")

// Broadcaster fans every published value out to all subscribers. Subscribers that fall behind
// lose their oldest pending value, publishers never block.
type Broadcaster[T any] struct {
	incoming chan T

	mu          sync.Mutex
	subscribers map[chan T]struct{}
	stopped     bool
	closing     bool
}

// NewBroadcaster starts the fan-out goroutine. Stop ends it.
func NewBroadcaster[T any]() *Broadcaster[T] {
	b := &Broadcaster[T]{
		incoming:    make(chan T, 1),
		subscribers: make(map[chan T]struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcaster[T]) run() {
	for msg := range b.incoming {
		// delivery never blocks, holding mu keeps Unsubscribe from closing a target mid-send
		b.mu.Lock()
		for s := range b.subscribers {
			offerLatest(s, msg)
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	for s := range b.subscribers {
		close(s)
	}
	b.stopped = true
	b.mu.Unlock()
}

// offerLatest sends msg to a buffered channel, evicting the oldest value if it is full.
func offerLatest[T any](ch chan T, msg T) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Stop closes every subscriber channel once pending values are delivered.
func (b *Broadcaster[T]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return
	}
	b.closing = true
	close(b.incoming)
}

// Subscribe returns a channel with room for one pending value.
func (b *Broadcaster[T]) Subscribe() (chan T, error) {
	ch := make(chan T, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.closing {
		return nil, ErrBroadcasterStopped
	}
	b.subscribers[ch] = struct{}{}
	return ch, nil
}

// Unsubscribe removes ch and closes it, unless the broadcaster already did.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	if !b.stopped {
		close(ch)
	}
}

// Publish hands msg to the fan-out goroutine. Publishing after Stop is a no-op.
func (b *Broadcaster[T]) Publish(msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return
	}
	offerLatest(b.incoming, msg)
}
