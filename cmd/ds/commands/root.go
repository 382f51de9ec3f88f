// Package commands implements the CLI commands for the directory service
// server.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/groupds/groupds/cmd/ds/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd starts the server when called without a subcommand, so the plain
// "ds [-p port] [-v]" invocation serves.
var rootCmd = &cobra.Command{
	Use:   "ds",
	Short: "Group directory service server",
	Long: `ds is the group directory service server. It manages user accounts,
group subscriptions and group messages over a single port: management
commands arrive as UDP datagrams, message transfers run over TCP.

Run without a subcommand (or with "start") to serve.
Use "ds [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStart,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/groupds/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
