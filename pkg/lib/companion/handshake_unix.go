//go:build !windows

package companion

import (
	"context"
	"net"
	"os"
	"path/filepath"
)

func handshakeAddress(id string) string {
	return filepath.Join(os.TempDir(), "launcher-companion-"+id+".sock")
}

func listen(addr string) (net.Listener, error) {
	return net.Listen("unix", addr)
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", addr)
}

func cleanupAddress(addr string) {
	os.Remove(addr)
}
