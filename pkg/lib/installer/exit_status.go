package installer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// LauncherCommandFile is where the installer leaves instructions for the launcher.
const LauncherCommandFile = "/run/launcher-command"

var (
	ErrNoInstructions = errors.New("no valid instruction found in the launcher command file")

	keyValueRe = regexp.MustCompile(`^\s*(\w+)\s*[=:]\s*(\w+).*$`)
	commentRe  = regexp.MustCompile(`^\s*#+.*`)
)

// ExitStatus holds what the installer asked the launcher to do once it exits.
type ExitStatus struct {
	// Action is "reboot" or "shutdown" when set.
	Action string
	// DefaultUID is set when the installer created the default user.
	DefaultUID *uint32
}

type valueKind int

const (
	kindString valueKind = iota
	kindUint
)

var grammar = map[string]valueKind{
	"action":     kindString,
	"defaultUid": kindUint,
}

// ParseExitStatus reads "key = value" or "key: value" lines. Lines starting with '#' are comments.
// Unknown keys and values of the wrong type are skipped; it fails only if nothing valid was found.
func ParseExitStatus(r io.Reader) (ExitStatus, error) {
	var st ExitStatus
	found := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if commentRe.MatchString(line) {
			continue
		}
		m := keyValueRe.FindStringSubmatch(line)
		if len(m) != 3 {
			continue
		}
		key, value := m[1], m[2]
		kind, ok := grammar[key]
		if !ok {
			continue
		}
		switch kind {
		case kindString:
			st.Action = value
			found = true
		case kindUint:
			uid, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				logger.Printf("Ignoring %s=%q: %v", key, value, err)
				continue
			}
			u := uint32(uid)
			st.DefaultUID = &u
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return ExitStatus{}, fmt.Errorf("read launcher command file: %w", err)
	}
	if !found {
		return ExitStatus{}, ErrNoInstructions
	}
	return st, nil
}
