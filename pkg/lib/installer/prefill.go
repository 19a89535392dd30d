package installer

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PrefillFile is where the seed data for the installer is written inside the distro.
const PrefillFile = "/var/tmp/prefill-system-setup.yaml"

// UserInfo seeds the installer input fields.
type UserInfo struct {
	Locale   string
	RealName string
	UserName string
}

type prefill struct {
	Welcome     *prefillWelcome  `yaml:"Welcome,omitempty"`
	WSLIdentity *prefillIdentity `yaml:"WSLIdentity,omitempty"`
}

type prefillWelcome struct {
	Lang string `yaml:"lang"`
}

type prefillIdentity struct {
	RealName string `yaml:"realname,omitempty"`
	UserName string `yaml:"username,omitempty"`
}

// YAML renders the info in the installer prefill format. Empty info renders as nil.
func (u UserInfo) YAML() ([]byte, error) {
	var doc prefill
	if u.Locale != "" {
		doc.Welcome = &prefillWelcome{Lang: u.Locale}
	}
	if u.RealName != "" || u.UserName != "" {
		doc.WSLIdentity = &prefillIdentity{RealName: u.RealName, UserName: u.UserName}
	}
	if doc.Welcome == nil && doc.WSLIdentity == nil {
		return nil, nil
	}
	return yaml.Marshal(doc)
}

// CurrentUserInfo collects the host user identity and locale.
func CurrentUserInfo() UserInfo {
	var info UserInfo
	if u, err := user.Current(); err == nil {
		info.UserName = sanitizeUserName(u.Username)
		info.RealName = u.Name
	}
	info.Locale = strings.ReplaceAll(hostLocale(), "-", "_")
	return info
}

// sanitizeUserName drops the Windows domain and lowercases the rest, as Linux user names are.
func sanitizeUserName(name string) string {
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			return r
		}
		return -1
	}, name)
}

func writePrefill(d Distro, info UserInfo) (string, error) {
	data, err := info.YAML()
	if err != nil {
		return "", fmt.Errorf("render prefill info: %w", err)
	}
	if data == nil {
		return "", nil
	}
	dest := HostPath(d, PrefillFile)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create prefill directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write prefill file: %w", err)
	}
	return " --prefill=" + PrefillFile, nil
}
