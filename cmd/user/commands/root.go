// Package commands implements the interactive directory service client.
package commands

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/groupds/groupds/internal/client"
	"github.com/groupds/groupds/internal/logger"
	"github.com/groupds/groupds/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile      string
	serverHost   string
	serverPort   int
	downloadDir  string
	verbose      bool
	versionShort bool
)

// rootCmd starts the interactive session when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "user",
	Short: "Interactive directory service client",
	Long: `user is the interactive client for the group directory service.
It connects to a server and offers commands to manage an account, join
groups, post messages and retrieve them.

Type ? at the prompt for the command list.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runClient,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		if versionShort {
			fmt.Println(Version)
			return
		}

		fmt.Printf("user %s\n", Version)
		fmt.Printf("  Commit:     %s\n", Commit)
		fmt.Printf("  Built:      %s\n", Date)
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/groupds/config.yaml)")
	rootCmd.Flags().StringVarP(&serverHost, "server", "n", "", "server host (overrides config)")
	rootCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (overrides config)")
	rootCmd.Flags().StringVarP(&downloadDir, "downloads", "d", ".", "directory for retrieved attachments")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every request and reply")

	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show only version number")
	rootCmd.AddCommand(versionCmd)
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if serverHost != "" {
		cfg.Client.Server = serverHost
	}
	if serverPort != 0 {
		cfg.Client.Port = serverPort
	}

	level := "WARN"
	if verbose {
		level = "DEBUG"
	}
	if err := logger.Init(logger.Config{Level: level, Format: "text", Output: "stderr"}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	c := client.New(cfg.Client.Server, cfg.Client.Port)
	repl := client.NewREPL(c, os.Stdout, downloadDir)
	return repl.Run()
}
