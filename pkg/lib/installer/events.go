package installer

// Mode selects the installer user interface.
type Mode int

const (
	ModeAutoDetect Mode = iota
	ModeGui
	ModeText
)

func (m Mode) String() string {
	switch m {
	case ModeGui:
		return "gui"
	case ModeText:
		return "text"
	default:
		return "auto"
	}
}

// Event is one of AutoInstall, InteractiveInstall, Reconfig, StartInstaller or BlockOnInstaller.
type Event interface {
	installerEvent()
}

// AutoInstall requests an unattended install seeded by the file at Path.
type AutoInstall struct {
	Path string
}

// InteractiveInstall requests an install driven by the user.
type InteractiveInstall struct {
	Mode Mode
}

// Reconfig requests the installer in reconfiguration mode for an already installed distro.
type Reconfig struct{}

// StartInstaller launches a prepared installer and waits until it is ready for the user.
type StartInstaller struct{}

// BlockOnInstaller blocks until the installer finishes.
type BlockOnInstaller struct{}

func (AutoInstall) installerEvent()        {}
func (InteractiveInstall) installerEvent() {}
func (Reconfig) installerEvent()           {}
func (StartInstaller) installerEvent()     {}
func (BlockOnInstaller) installerEvent()   {}
