package installer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/mutex"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

const (
	oobePath = "/usr/libexec/wsl-setup"
	// WSLg exposes a wayland socket when graphical applications can run.
	guiProbe = "test -S /mnt/wslg/runtime-dir/wayland-0"

	installerWindowClass = "RAIL_WINDOW"

	defaultPollDelay      = 3 * time.Second
	pollDelayRatio        = 0.65
	defaultWatcherTimeout = time.Second
	defaultHideInterval   = 10 * time.Millisecond
	defaultStopInterval   = 997 * time.Millisecond
	stopAttempts          = 30

	// RootUserMutex serializes changes of the distro default user.
	RootUserMutex = "root-user"
)

// WSLPolicy is the production Policy.
type WSLPolicy struct {
	distro   Distro
	win      window.Ops
	userInfo func() UserInfo
	rootUser *mutex.Mutex

	pollDelay      time.Duration
	watcherTimeout time.Duration
	hideInterval   time.Duration
	stopInterval   time.Duration
}

// PolicyOption customizes a WSLPolicy.
type PolicyOption func(*WSLPolicy)

// WithWindowOps replaces the window manager binding.
func WithWindowOps(ops window.Ops) PolicyOption {
	return func(p *WSLPolicy) { p.win = ops }
}

// WithUserInfo replaces the source of prefill data.
func WithUserInfo(fn func() UserInfo) PolicyOption {
	return func(p *WSLPolicy) { p.userInfo = fn }
}

// WithRootUserMutex replaces the mutex guarding the default user change.
func WithRootUserMutex(m *mutex.Mutex) PolicyOption {
	return func(p *WSLPolicy) { p.rootUser = m }
}

// WithPollDelay sets the delay base of the readiness polling. Later delays shrink geometrically.
func WithPollDelay(d time.Duration) PolicyOption {
	return func(p *WSLPolicy) { p.pollDelay = d }
}

// WithIntervals sets how long a single probe may run, the pause between window lookups and the
// pause between distro state checks.
func WithIntervals(watcher, hide, stop time.Duration) PolicyOption {
	return func(p *WSLPolicy) {
		p.watcherTimeout = watcher
		p.hideInterval = hide
		p.stopInterval = stop
	}
}

// NewWSLPolicy returns a policy acting on d.
func NewWSLPolicy(d Distro, opts ...PolicyOption) *WSLPolicy {
	p := &WSLPolicy{
		distro:         d,
		win:            window.System(),
		userInfo:       CurrentUserInfo,
		pollDelay:      defaultPollDelay,
		watcherTimeout: defaultWatcherTimeout,
		hideInterval:   defaultHideInterval,
		stopInterval:   defaultStopInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rootUser == nil {
		p.rootUser = mutex.New(RootUserMutex, mutex.WithLazyInit())
	}
	return p
}

func (p *WSLPolicy) IsOOBEAvailable() bool {
	code, _, err := p.distro.Run("which " + oobePath)
	return err == nil && code == 0
}

func (p *WSLPolicy) PreparePrefillInfo() string {
	suffix, err := writePrefill(p.distro, p.userInfo())
	if err != nil {
		logger.Printf("Skipping prefill: %v", err)
		return ""
	}
	return suffix
}

func (p *WSLPolicy) MustRunInTextMode() bool {
	code, _, err := p.distro.Run(guiProbe)
	return err != nil || code != 0
}

func (p *WSLPolicy) CopyFileIntoDistro(from, to string) bool {
	if err := copyFile(from, HostPath(p.distro, to)); err != nil {
		logger.Printf("Copy %q into the distro: %v", from, err)
		return false
	}
	return true
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", from)
	}
	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (p *WSLPolicy) TryHidingInstallerWindow(attempts int) window.Handle {
	name := p.distro.Name()
	captions := []string{
		"Ubuntu WSL (" + name + ")",
		"[WARN:COPY MODE] Ubuntu WSL (" + name + ")",
	}
	for i := 0; i < attempts; i++ {
		for _, caption := range captions {
			h, err := p.win.Find(installerWindowClass, caption)
			if errors.Is(err, window.ErrUnsupported) {
				return 0
			}
			if err != nil || h == 0 {
				continue
			}
			p.win.Hide(h)
			return h
		}
		time.Sleep(p.hideInterval)
	}
	return 0
}

func (p *WSLPolicy) ShowWindow(h window.Handle) {
	p.win.Show(h)
}

// pollBackOff yields delays starting at 65% of the base and shrinking by the same ratio.
func (p *WSLPolicy) pollBackOff(attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(float64(p.pollDelay) * pollDelayRatio)
	b.Multiplier = pollDelayRatio
	b.RandomizationFactor = 0
	b.MaxInterval = p.pollDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

func (p *WSLPolicy) PollSuccess(command string, attempts int, monitored Process) bool {
	if attempts <= 0 {
		attempts = 1
	}
	probe := func() error {
		proc, err := p.distro.Launch(command, false)
		if err != nil {
			return err
		}
		code, err := proc.WaitExitSync(p.watcherTimeout)
		if err != nil {
			proc.Terminate()
			return fmt.Errorf("probe did not finish: %w", err)
		}
		if code != 0 {
			return fmt.Errorf("probe exited with %d", code)
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Printf("Installer not ready (%v), next probe in %s", err, next)
	}
	if err := backoff.RetryNotify(probe, p.pollBackOff(attempts), notify); err != nil {
		logger.Printf("Installer never became ready: %v", err)
		// started but never ready
		monitored.Terminate()
		return false
	}
	return true
}

func (p *WSLPolicy) ConsumeProcess(proc Process, timeout time.Duration) int {
	code, err := proc.WaitExitSync(timeout)
	if err != nil {
		logger.Printf("Installer did not finish: %v", err)
		proc.Terminate()
		return lib.ExitCodeCrashed
	}
	// the graphical installer exits 0 on some crashes, so check the server state
	if code == 0 {
		code, err = p.distro.LaunchInteractive(ServerStateCheck)
		if err != nil {
			logger.Printf("Checking the installer server state: %v", err)
		}
		p.distro.LaunchInteractive("clear")
	}
	return code
}

func (p *WSLPolicy) StartInstallerAsync(cli string) (Process, error) {
	return p.distro.Launch(cli, true)
}

func (p *WSLPolicy) DoLaunchSync(cli string) int {
	code, err := p.distro.LaunchInteractive(cli)
	if err != nil && code == 0 {
		return -1
	}
	return code
}

func (p *WSLPolicy) HandleExitStatus() {
	path := HostPath(p.distro, LauncherCommandFile)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		// nothing left to do
		return
	}
	if err != nil {
		logger.Printf("Opening %s: %v", path, err)
		return
	}
	st, err := ParseExitStatus(f)
	f.Close()
	if err != nil {
		logger.Printf("Parsing %s: %v", path, err)
	} else {
		if err := p.configure(st); err != nil {
			logger.Print(err)
		}
		if err := p.act(st); err != nil {
			logger.Print(err)
		}
	}
	if err := os.Remove(path); err != nil {
		logger.Printf("Removing %s: %v", filepath.Base(path), err)
	}
}

func (p *WSLPolicy) configure(st ExitStatus) error {
	if st.DefaultUID == nil {
		return nil
	}
	uid := *st.DefaultUID
	err := p.rootUser.With(func() error { return p.distro.SetDefaultUID(uid) })
	if err != nil {
		return fmt.Errorf("could not configure distro to the new default UID %d: %w", uid, err)
	}
	return nil
}

var ErrUnknownAction = errors.New("unknown launcher action")

func (p *WSLPolicy) act(st ExitStatus) error {
	switch st.Action {
	case "":
		return nil
	// there is no shutdown in WSL, the distro is restarted on demand
	case "reboot", "shutdown":
		return p.rebootDistro()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, st.Action)
	}
}

var errStillRunning = errors.New("distro is still running")

func (p *WSLPolicy) rebootDistro() error {
	if err := p.distro.Terminate(); err != nil {
		return fmt.Errorf("failed to invoke shutdown command: %w", err)
	}
	stopped := func() error {
		running, err := p.distro.Running()
		if err != nil {
			return backoff.Permanent(err)
		}
		if running {
			return errStillRunning
		}
		return nil
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.stopInterval), stopAttempts-1)
	if err := backoff.Retry(stopped, b); err != nil {
		return fmt.Errorf("distro %s did not stop: %w", p.distro.Name(), err)
	}
	return nil
}
