package main

import "github.com/spf13/cobra"

// runLauncher executes root and tears the app down whether the command failed or not. A
// teardown error only surfaces when the command itself succeeded.
func runLauncher(a *app, root *cobra.Command) error {
	err := root.Execute()
	if terr := a.teardown(); terr != nil {
		if err == nil {
			return terr
		}
		printError(terr)
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "launcher",
		Short:         "Distro launcher: installs and reconfigures the WSL distribution",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr")
	flags.StringVar(&a.metricsDump, "metrics-dump", "", "write run metrics to this file on exit, '-' for stdout")

	root.AddCommand(newInstallCmd(a))
	root.AddCommand(newReconfigCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newRunCmd(a))

	return root
}
