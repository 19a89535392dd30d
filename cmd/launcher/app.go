package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/companion"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/config"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/console"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/event"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/fsm"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/installer"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/metrics"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/mutex"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/pipe"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/strategy"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/supervisor"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

const (
	companionSettleDelay = 500 * time.Millisecond

	// installMutex keeps two launchers from driving the installer of one distribution.
	installMutex = "install-mutex"
)

var errAlreadyRunning = errors.New("another launcher is already setting up")

// app carries what the commands share: flags, the loaded configuration and the metrics.
type app struct {
	configPath  string
	verbose     bool
	metricsDump string

	cfg      config.AppConfig
	recorder metrics.Recorder
	metrics  *metrics.Collector
	logFile  *os.File

	out    io.Writer
	errOut io.Writer

	// replaced in tests
	newDistro func(cfg config.AppConfig) installer.Distro
	mutexOpts []mutex.Option
}

func newApp() *app {
	return &app{
		recorder:  metrics.Noop{},
		out:       os.Stdout,
		errOut:    os.Stderr,
		newDistro: defaultDistro,
	}
}

func defaultDistro(cfg config.AppConfig) installer.Distro {
	if runtime.GOOS == "windows" {
		return installer.NewWSLDistro(cfg.DistroName)
	}
	return installer.NewLocalDistro(cfg.DistroName, "/")
}

// setup loads the configuration and routes the package logs.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Verbose = true
	}
	a.cfg = cfg
	mutex.DistroName = cfg.DistroName

	if a.metricsDump != "" {
		a.metrics = metrics.NewCollector("launcher")
		a.recorder = a.metrics
	}
	return a.setupLogging()
}

func (a *app) setupLogging() error {
	var w io.Writer = io.Discard
	switch {
	case a.cfg.LogFile != "":
		f, err := os.OpenFile(a.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		w = f
	case a.cfg.Verbose:
		w = a.errOut
	}

	loggerFor := func(prefix string) *log.Logger {
		return log.New(w, prefix+": ", log.LstdFlags)
	}
	fsm.SetLogger(loggerFor("fsm"))
	pipe.SetLogger(loggerFor("pipe"))
	mutex.SetLogger(loggerFor("mutex"))
	console.SetLogger(loggerFor("console"))
	supervisor.SetLogger(loggerFor("supervisor"))
	installer.SetLogger(loggerFor("installer"))
	companion.SetLogger(loggerFor("companion"))
	strategy.SetLogger(loggerFor("strategy"))
	loggerFor("launcher").Printf("%s starting for distro %s", a.cfg.AppName, a.cfg.DistroName)
	return nil
}

// teardown writes the metrics when asked to and closes the log file. Calling it again is a no-op.
func (a *app) teardown() error {
	var err error
	if a.metrics != nil {
		err = a.dumpMetrics()
		a.metrics = nil
	}
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
	return err
}

func (a *app) dumpMetrics() error {
	if a.metricsDump == "-" {
		return a.metrics.Dump(a.out)
	}
	f, err := os.Create(a.metricsDump)
	if err != nil {
		return fmt.Errorf("create metrics dump: %w", err)
	}
	defer f.Close()
	return a.metrics.Dump(f)
}

func (a *app) newMutex(name string) *mutex.Mutex {
	return mutex.New(name, append([]mutex.Option{mutex.WithLazyInit()}, a.mutexOpts...)...)
}

// exclusive runs fn unless another launcher holds the install mutex of the distribution.
func (a *app) exclusive(fn func() error) error {
	m := a.newMutex(installMutex)
	defer m.Close()

	err := m.With(fn)
	if errors.Is(err, mutex.ErrBusy) {
		return fmt.Errorf("%w %s", errAlreadyRunning, a.cfg.DistroName)
	}
	return err
}

func (a *app) installerController(d installer.Distro) *installer.Controller {
	policy := installer.NewWSLPolicy(d,
		installer.WithPollDelay(a.cfg.Timeouts.PollDelay),
		installer.WithRootUserMutex(a.newMutex(installer.RootUserMutex)))
	return installer.NewController(policy,
		fsm.WithObserver(metrics.Observer[installer.State, installer.Event](a.recorder, "installer"))).
		WithInstallerTimeout(a.cfg.Timeouts.Installer)
}

// strategyOptions configure the strategy from the configuration; withCompanion enables the
// companion when its executable exists.
func (a *app) strategyOptions(withCompanion bool) []strategy.Option {
	opts := []strategy.Option{
		strategy.WithForceMode(config.ForceModeFromEnv()),
		strategy.WithGuardTimeout(a.cfg.Timeouts.Guard),
		strategy.WithOutput(a.out),
	}
	if a.cfg.MustSkipFallback {
		opts = append(opts, strategy.WithoutFallback())
	}
	if !withCompanion {
		return opts
	}

	exe := a.cfg.CompanionPath(executableDir())
	if exe == "" {
		return opts
	}
	if _, err := os.Stat(exe); err != nil {
		return opts
	}

	consoleWindow := window.Console(a.cfg.DistroName)
	newConsole := func() (strategy.Console, *os.File, error) {
		return strategy.PipeConsole(consoleWindow)
	}
	newCompanion := func(stdin *os.File) strategy.Companion {
		copts := []companion.Option{
			companion.WithTimeouts(a.cfg.Timeouts.Handshake, companionSettleDelay),
			companion.WithObserver(metrics.Observer[companion.State, companion.Event](a.recorder, "companion")),
		}
		if a.cfg.RequiresNewConsole {
			copts = append(copts, companion.WithNewConsole())
		}
		return companion.NewController(exe, stdin, copts...)
	}
	opts = append(opts,
		strategy.WithCompanion(newConsole, newCompanion),
		strategy.WithExitHook(func(ex companion.Exit) { a.recorder.CompanionExit(ex.ExitCode) }),
	)

	if ev, err := event.New(closeEventName(a.cfg.DistroName)); err == nil {
		opts = append(opts, strategy.WithCloseEvent(ev))
	}
	return opts
}

func closeEventName(distro string) string {
	return `Local\` + distro + "-close-oobe"
}

func registeredEventName(distro string) string {
	return `Local\` + distro + "-registered"
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
