package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/event"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/installer"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/strategy"
)

func newInstallCmd(a *app) *cobra.Command {
	var (
		text, gui   bool
		autoinstall string
		noCompanion bool
		hideConsole bool
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Run the installer in a freshly registered distribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exclusive(func() error {
				return a.install(text, gui, autoinstall, !noCompanion, hideConsole)
			})
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "force the text mode installer")
	cmd.Flags().BoolVar(&gui, "gui", false, "force the graphical installer")
	cmd.Flags().StringVar(&autoinstall, "autoinstall", "", "install unattended from this autoinstall file")
	cmd.Flags().BoolVar(&noCompanion, "no-companion", false, "do not run the companion application")
	cmd.Flags().BoolVar(&hideConsole, "hide-console", false, "hide the console while the companion is visible")
	cmd.MarkFlagsMutuallyExclusive("text", "gui", "autoinstall")
	return cmd
}

func (a *app) install(text, gui bool, autoinstall string, useCompanion, hideConsole bool) error {
	mode := installer.ModeAutoDetect
	switch {
	case text:
		mode = installer.ModeText
	case gui:
		mode = installer.ModeGui
	}

	withCompanion := autoinstall == "" && useCompanion
	s := strategy.New(a.installerController(a.newDistro(a.cfg)), a.strategyOptions(withCompanion)...)
	defer s.Close()

	var err error
	if autoinstall != "" {
		printStep(a.out, "Installing %s unattended from %s", a.cfg.DistroName, autoinstall)
		err = s.AutoInstall(autoinstall)
	} else {
		if withCompanion {
			s.RunCompanion(hideConsole)
			if err := notifyRegistered(a.cfg.DistroName); err != nil {
				printWarning(a.errOut, "%v", err)
			}
		}
		printStep(a.out, "Installing %s (%s)", a.cfg.DistroName, mode)
		err = s.Install(mode)
	}
	a.recorder.Outcome("install", err)
	return a.finish(s, err)
}

// notifyRegistered tells a companion waiting on it that the distribution is registered. An event
// some other process fired already counts as notified.
func notifyRegistered(distro string) error {
	name := registeredEventName(distro)
	ev, err := event.New(name)
	if err != nil {
		return fmt.Errorf("could not notify the registration of %s: %w", distro, err)
	}
	defer ev.Close()
	if !ev.Set() && !event.Signaled(name) {
		return fmt.Errorf("could not notify the registration of %s", distro)
	}
	return nil
}

// finish reports a workflow result. A fallback is not an error for the caller: the plain setup
// takes over.
func (a *app) finish(s *strategy.Strategy, err error) error {
	outcome := s.Outcome(err)
	switch {
	case outcome == nil:
		printSuccess(a.out, "Installer completed")
		return nil
	case errors.Is(outcome, strategy.ErrNoFallback):
		printError(outcome)
		return &exitError{code: strategy.ExitNoFallback}
	case errors.Is(outcome, installer.ENotImpl):
		return nil
	default:
		printWarning(a.errOut, "Installer did not complete successfully: %v", err)
		printWarning(a.errOut, "Applying fallback method.")
		return nil
	}
}
