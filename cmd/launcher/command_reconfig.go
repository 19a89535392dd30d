package main

import (
	"github.com/spf13/cobra"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/strategy"
)

func newReconfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconfig",
		Short: "Run the installer in reconfiguration mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exclusive(func() error {
				s := strategy.New(a.installerController(a.newDistro(a.cfg)), a.strategyOptions(false)...)
				defer s.Close()

				printStep(a.out, "Reconfiguring %s", a.cfg.DistroName)
				err := s.Reconfigure()
				a.recorder.Outcome("reconfigure", err)
				return a.finish(s, err)
			})
		},
	}
	return cmd
}
