package strategy

import (
	"fmt"
	"os"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/console"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/pipe"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

// PipeConsole creates a fresh pipe whose inheritable read end feeds the companion, and a console
// service redirecting this process into its write end. consoleWindow may be 0.
func PipeConsole(consoleWindow window.Handle) (Console, *os.File, error) {
	p, err := pipe.New("launcher-"+lib.NewShortID(), pipe.Options{InheritRead: true})
	if err != nil {
		return nil, nil, fmt.Errorf("create console pipe: %w", err)
	}
	read, err := p.ReadFile()
	if err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("open console pipe read end: %w", err)
	}
	return console.NewService(p, console.WithWindow(window.System(), consoleWindow)), read, nil
}
