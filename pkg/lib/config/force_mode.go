package config

// ForceMode is the installer UI mode imposed through LAUNCHER_FORCE_MODE.
type ForceMode int

const (
	// ForceModeUnset means the variable is not defined
	ForceModeUnset ForceMode = iota
	// ForceModeInvalid means the variable holds anything but a single 0, 1 or 2
	ForceModeInvalid
	// ForceModeNone is "0": detect the UI as usual
	ForceModeNone
	// ForceModeText is "1"
	ForceModeText
	// ForceModeGui is "2"
	ForceModeGui
)

func (m ForceMode) String() string {
	switch m {
	case ForceModeInvalid:
		return "invalid"
	case ForceModeNone:
		return "none"
	case ForceModeText:
		return "text"
	case ForceModeGui:
		return "gui"
	default:
		return "unset"
	}
}

// Forced reports whether auto detection must be skipped.
func (m ForceMode) Forced() bool {
	return m == ForceModeText || m == ForceModeGui
}

// ParseForceMode interprets the value of the variable. set is false when it is not defined.
func ParseForceMode(value string, set bool) ForceMode {
	if !set {
		return ForceModeUnset
	}
	if len(value) != 1 {
		return ForceModeInvalid
	}
	switch value[0] {
	case '0':
		return ForceModeNone
	case '1':
		return ForceModeText
	case '2':
		return ForceModeGui
	}
	return ForceModeInvalid
}

// ForceModeFromEnv reads LAUNCHER_FORCE_MODE.
func ForceModeFromEnv() ForceMode {
	v := newViper()
	v.AllowEmptyEnv(true)
	_ = v.BindEnv("force_mode")
	return ParseForceMode(v.GetString("force_mode"), v.IsSet("force_mode"))
}
