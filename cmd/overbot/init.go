package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
)

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long:  "Writes the default configuration to --config. An existing file is left untouched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			written, err := config.WriteDefault(*configPath)
			if err != nil {
				return err
			}
			if written {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", *configPath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists, leaving it unchanged\n", *configPath)
			}
			return nil
		},
	}
}
