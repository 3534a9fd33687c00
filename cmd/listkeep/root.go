package main

import (
	"github.com/spf13/cobra"

	"github.com/listkeep/listkeep/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the listkeep CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listkeep",
		Short: "listkeep - private per-user lists",
		Long: `listkeep is a multi-user list service. Users register, log in
and keep a private, ordered list of items.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/listkeep/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSessionsCmd())

	return cmd
}

// loadConfig reads configuration for cmd from the dotenv file, the config
// file, the environment and cmd's flags. Without --config the XDG config
// file is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if envFile != "" {
		if err := config.LoadDotenv(envFile); err != nil {
			return nil, err
		}
	}
	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(cmd.Flags(), path)
}
