package main

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "autogoal",
		Short:         "Drive a goal through an expanding queue of model-generated tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default <user config dir>/autogoal/config.json)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log engine internals to stderr")

	cmd.AddCommand(runCmd(g))
	cmd.AddCommand(serveCmd(g))
	cmd.AddCommand(stdioCmd(g))
	cmd.AddCommand(historyCmd(g))
	cmd.AddCommand(configCmd(g))
	return cmd
}
