//go:build windows

package companion

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func handshakeAddress(id string) string {
	return `\\.\pipe\launcher-companion-` + id
}

func listen(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, &winio.PipeConfig{
		MessageMode:      false,
		InputBufferSize:  512,
		OutputBufferSize: 512,
	})
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, addr)
}

// Pipes vanish with their last handle.
func cleanupAddress(string) {}
