package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/autogoal/internal/config"
	"github.com/spf13/cobra"
)

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
	}
	cmd.AddCommand(configShowCmd(g))
	cmd.AddCommand(configSetCmd(g))
	cmd.AddCommand(configPathCmd(g))
	return cmd
}

func configManager(g *globalFlags) (*config.Manager, error) {
	if g.configPath != "" {
		return config.NewManagerAt(g.configPath), nil
	}
	return config.NewManager()
}

func configShowCmd(g *globalFlags) *cobra.Command {
	var effective bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := configManager(g)
			if err != nil {
				return err
			}
			cfg, err := m.Load()
			if err != nil {
				return err
			}
			if effective {
				if err := cfg.ApplyEnv(os.Getenv); err != nil {
					return err
				}
			}
			redacted := cfg.Redacted()
			data, err := json.MarshalIndent(&redacted, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&effective, "effective", false, "Include environment overrides")
	return cmd
}

func configSetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one configuration value",
		Long:  "Set one configuration value. Keys: " + strings.Join(config.Keys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := configManager(g)
			if err != nil {
				return err
			}
			cfg, err := m.Load()
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := m.Save(cfg); err != nil {
				return err
			}
			redacted := cfg.Redacted()
			shown, _ := redacted.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], shown)
			return nil
		},
	}
}

func configPathCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := configManager(g)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.Path())
			return nil
		},
	}
}
