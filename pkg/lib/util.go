package lib

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a UUID version 4 string (RFC 4122)
func NewID() string {
	return uuid.NewString()
}

// NewShortID returns the first group of a fresh UUID, handy for OS object names
// that have tight length limits.
func NewShortID() string {
	id := uuid.NewString()
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
