package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/supervisor"
)

// Distro is the part of the WSL API the installer relies on.
type Distro interface {
	Name() string
	// Root is where the distro filesystem is reachable from the launcher.
	Root() string
	// Launch starts command inside the distro without waiting for it. With interactive set the
	// command shares the launcher's standard streams.
	Launch(command string, interactive bool) (Process, error)
	// LaunchInteractive runs command to completion on the launcher's streams.
	LaunchInteractive(command string) (int, error)
	// Run executes command quietly and returns its exit code and standard output.
	Run(command string) (int, string, error)
	SetDefaultUID(uid uint32) error
	// Terminate stops every process of the distro.
	Terminate() error
	// Running reports whether the distro is currently running.
	Running() (bool, error)
}

// Shell implements Distro by running commands through a shell, optionally behind a prefix such as
// "wsl.exe -d Ubuntu --".
type Shell struct {
	name   string
	root   string
	prefix []string
	shell  string
}

// NewWSLDistro reaches the distro through wsl.exe.
func NewWSLDistro(name string) *Shell {
	return &Shell{
		name:   name,
		root:   `\\wsl.localhost\` + name,
		prefix: []string{"wsl.exe", "-d", name, "--"},
		shell:  "bash",
	}
}

// NewLocalDistro runs commands on the current machine with root as the distro filesystem.
func NewLocalDistro(name, root string) *Shell {
	return &Shell{name: name, root: root, shell: "sh"}
}

func (d *Shell) Name() string {
	return d.name
}

func (d *Shell) Root() string {
	return d.root
}

func (d *Shell) command(cmd string) (string, []string) {
	argv := append(append([]string(nil), d.prefix...), d.shell, "-c", cmd)
	return argv[0], argv[1:]
}

func (d *Shell) Launch(command string, interactive bool) (Process, error) {
	exe, args := d.command(command)
	var opts []supervisor.Option
	if interactive {
		opts = append(opts, supervisor.WithStdin(os.Stdin), supervisor.WithStdout(os.Stdout), supervisor.WithStderr(os.Stderr))
	}
	p := supervisor.New(exe, args, opts...)
	if err := p.Start(); err != nil && err != supervisor.ErrExitedEarly {
		return nil, err
	}
	return p, nil
}

func (d *Shell) LaunchInteractive(command string) (int, error) {
	p, err := d.Launch(command, true)
	if err != nil {
		return -1, err
	}
	return p.WaitExitSync(0)
}

func (d *Shell) Run(command string) (int, string, error) {
	out, err := os.CreateTemp("", "launcher-run-*")
	if err != nil {
		return -1, "", err
	}
	defer os.Remove(out.Name())
	defer out.Close()

	exe, args := d.command(command)
	p := supervisor.New(exe, args, supervisor.WithStdout(out))
	if err := p.Start(); err != nil && err != supervisor.ErrExitedEarly {
		return -1, "", err
	}
	code, err := p.WaitExitSync(0)
	if err != nil {
		return code, "", err
	}
	if st := p.Status(); st.EndTime != nil {
		logger.Printf("%q exited with %d after %s", command, code, st.EndTime.Sub(st.StartTime))
	}
	b, err := os.ReadFile(out.Name())
	if err != nil {
		return code, "", err
	}
	return code, string(b), nil
}

func (d *Shell) SetDefaultUID(uid uint32) error {
	if d.prefix == nil {
		return fmt.Errorf("cannot set default uid %d on a local distro", uid)
	}
	return configureDistribution(d.name, uid)
}

func (d *Shell) Terminate() error {
	if d.prefix == nil {
		return nil
	}
	p := supervisor.New("wsl.exe", []string{"-t", d.name})
	if err := p.Start(); err != nil && err != supervisor.ErrExitedEarly {
		return err
	}
	code, err := p.WaitExitSync(30 * time.Second)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("wsl -t %s exited with %d", d.name, code)
	}
	return nil
}

func (d *Shell) Running() (bool, error) {
	if d.prefix == nil {
		return true, nil
	}
	out, err := os.CreateTemp("", "launcher-wsl-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(out.Name())
	defer out.Close()

	p := supervisor.New("wsl.exe", []string{"-l", "--quiet", "--running"}, supervisor.WithStdout(out))
	if err := p.Start(); err != nil && err != supervisor.ErrExitedEarly {
		return false, err
	}
	if code, err := p.WaitExitSync(0); err != nil || code != 0 {
		return false, fmt.Errorf("wsl -l exited with %d: %v", code, err)
	}
	b, err := os.ReadFile(out.Name())
	if err != nil {
		return false, err
	}
	return listsDistro(b, d.name), nil
}

// listsDistro looks for name among the lines printed by wsl.exe, which writes UTF-16LE.
func listsDistro(output []byte, name string) bool {
	text := strings.ReplaceAll(string(output), "\x00", "")
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(strings.TrimPrefix(line, "\ufeff")) == name {
			return true
		}
	}
	return false
}

// HostPath maps an absolute path inside the distro to a path the launcher can open.
func HostPath(d Distro, inside string) string {
	return filepath.Join(d.Root(), filepath.FromSlash(inside))
}
