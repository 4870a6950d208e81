package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "scmon",
	Short:         "Social capital monitor: daily contact digest over Telegram",
	SilenceUsage:  true,
	SilenceErrors: false,
	Version:       version.GetInfo(),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default $CONFIG_PATH or ./config.toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveConfigPath prefers the flag, then CONFIG_PATH.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("CONFIG_PATH")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Full())
	},
}
