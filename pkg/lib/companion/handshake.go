package companion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

// HandshakeEnv tells the companion where to report its window handle.
const HandshakeEnv = "LAUNCHER_COMPANION_HANDSHAKE"

var ErrNoHandshake = errors.New("companion did not report its window")

// Handshake is a short lived channel the companion writes its top-level window handle into,
// as a single decimal or 0x-prefixed line.
type Handshake interface {
	Address() string
	// Receive waits for the report until ctx is done.
	Receive(ctx context.Context) (window.Handle, error)
	Close() error
}

// NewHandshake listens on a fresh local endpoint: a named pipe on Windows, a unix socket elsewhere.
func NewHandshake() (Handshake, error) {
	addr := handshakeAddress(lib.NewShortID())
	ln, err := listen(addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &listenerHandshake{addr: addr, ln: ln}, nil
}

type listenerHandshake struct {
	addr      string
	ln        net.Listener
	closeOnce sync.Once
	closeErr  error
}

func (h *listenerHandshake) Address() string {
	return h.addr
}

func (h *listenerHandshake) Receive(ctx context.Context) (window.Handle, error) {
	type result struct {
		handle window.Handle
		err    error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := h.ln.Accept()
		if err != nil {
			done <- result{err: err}
			return
		}
		defer conn.Close()
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetReadDeadline(deadline)
		}
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil && line == "" {
			done <- result{err: err}
			return
		}
		handle, err := ParseHandle(line)
		done <- result{handle: handle, err: err}
	}()

	select {
	case r := <-done:
		return r.handle, r.err
	case <-ctx.Done():
		// unblocks Accept
		h.Close()
		return 0, fmt.Errorf("%w: %v", ErrNoHandshake, ctx.Err())
	}
}

func (h *listenerHandshake) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.ln.Close()
		cleanupAddress(h.addr)
	})
	return h.closeErr
}

// ParseHandle reads a window handle written by the companion.
func ParseHandle(s string) (window.Handle, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid window handle %q: %w", strings.TrimSpace(s), err)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: null handle", ErrNoHandshake)
	}
	return window.Handle(v), nil
}

// Report is the companion side of the handshake: it dials addr and writes h.
func Report(ctx context.Context, addr string, h window.Handle) error {
	conn, err := dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = fmt.Fprintf(conn, "%#x\n", uint64(h))
	return err
}
