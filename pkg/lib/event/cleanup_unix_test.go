//go:build !windows

package event

import "os"

func cleanup(name string) {
	_ = os.Remove(markerPath(name))
}
