package main

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	var save string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if save != "" {
				if err := a.cfg.Save(save); err != nil {
					return err
				}
				printSuccess(a.out, "Configuration saved to %s", save)
				return nil
			}
			data, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "write the configuration to this file instead")
	return cmd
}
