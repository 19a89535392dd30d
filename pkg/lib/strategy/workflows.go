package strategy

import (
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/installer"
)

// Install runs an interactive install. Text mode surfaces the console, and the companion steps
// aside once the installer is ready and closes when it finishes. The state reached by the last
// accepted event decides the result; a rejection after reaching UpstreamDefaultInstall keeps its
// code.
func (s *Strategy) Install(mode installer.Mode) error {
	events := []installer.Event{
		installer.InteractiveInstall{Mode: s.resolve(mode)},
		installer.StartInstaller{},
		installer.BlockOnInstaller{},
	}

	var result error = installer.ENotImpl
	var last installer.State
	for _, ev := range events {
		st, err := s.installer.AddEvent(ev)
		if err != nil {
			logger.Printf("Install sequence interrupted: %v", err)
			s.closeCompanion()
			return upstreamOr(last, installer.EFail)
		}
		last = st
		switch st := st.(type) {
		case installer.PreparedTui:
			s.showConsole()
		case installer.Ready:
			s.toggleCompanion()
		case installer.Success:
			s.closeCompanion()
			result = nil
		case installer.UpstreamDefaultInstall:
			s.showConsole()
			result = st.Code
		default:
			result = installer.EUnexpected
		}
	}
	return result
}

// Reconfigure runs the installer in reconfiguration mode. Text mode completes on the first
// event, GUI mode goes through PreparedGui and Ready first.
func (s *Strategy) Reconfigure() error {
	events := []installer.Event{installer.Reconfig{}, installer.StartInstaller{}, installer.BlockOnInstaller{}}

	for _, ev := range events {
		st, err := s.installer.AddEvent(ev)
		if err != nil {
			logger.Printf("Reconfigure sequence interrupted: %v", err)
			return installer.ENotImpl
		}
		switch st := st.(type) {
		case installer.Success:
			return nil
		case installer.PreparedGui, installer.Ready:
			continue
		case installer.UpstreamDefaultInstall:
			return st.Code
		default:
			return installer.EUnexpected
		}
	}
	return installer.ENotImpl
}

// AutoInstall runs an unattended install seeded by the file at path.
func (s *Strategy) AutoInstall(path string) error {
	first, err := s.installer.AddEvent(installer.AutoInstall{Path: path})
	if err != nil {
		return installer.EFail
	}
	st, err := s.installer.AddEvent(installer.BlockOnInstaller{})
	if err != nil {
		return upstreamOr(first, installer.EFail)
	}
	switch st := st.(type) {
	case installer.Success:
		return nil
	case installer.UpstreamDefaultInstall:
		return st.Code
	default:
		return installer.EUnexpected
	}
}

func upstreamOr(st installer.State, fallback installer.Code) error {
	if up, ok := st.(installer.UpstreamDefaultInstall); ok {
		return up.Code
	}
	return fallback
}
