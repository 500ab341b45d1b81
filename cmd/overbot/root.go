package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "overbot.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "overbot",
		Short: "Route chat events between networks",
		Long: `overbot bridges chat networks through an in-process event router.

Events from every attached network pass a filter chain and are delivered to
every other network. Messages starting with the command prefix are answered
by the command processor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the configuration file")

	root.AddCommand(
		newRunCmd(&configPath),
		newInitCmd(&configPath),
		newVersionCmd(),
	)
	return root
}
