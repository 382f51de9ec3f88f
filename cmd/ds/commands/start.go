package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/groupds/groupds/internal/logger"
	"github.com/groupds/groupds/internal/ops"
	"github.com/groupds/groupds/internal/server"
	"github.com/groupds/groupds/pkg/config"
	"github.com/groupds/groupds/pkg/store"
)

var (
	startPort    int
	startStore   string
	startVerbose bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the directory service",
	Long: `Start the directory service on the configured port, serving UDP
management commands and TCP message transfers.

Examples:
  # Start with defaults (port 58012, store in the working directory)
  ds start

  # Start on another port with a dedicated store directory
  ds start -p 59000 --store /var/lib/groupds

  # Start with verbose protocol logging
  ds start -v

  # Start with environment variable overrides
  GROUPDS_SERVER_PORT=59000 ds start`,
	RunE: runStart,
}

func init() {
	// The same flags serve "ds" and "ds start"; both run the server.
	for _, cmd := range []*cobra.Command{rootCmd, startCmd} {
		cmd.Flags().IntVarP(&startPort, "port", "p", 0, "port to listen on (overrides config)")
		cmd.Flags().StringVar(&startStore, "store", "", "store directory (overrides config)")
		cmd.Flags().BoolVarP(&startVerbose, "verbose", "v", false, "log every request and reply")
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if startPort != 0 {
		cfg.Server.Port = startPort
	}
	if startStore != "" {
		cfg.Server.Store = startStore
	}
	if startVerbose {
		cfg.Logging.Level = "DEBUG"
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Server.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	metrics := server.NullMetrics()
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = server.NewMetrics(reg)

		opsSrv := ops.NewServer(cfg.Metrics.Port, reg)
		go func() {
			if err := opsSrv.Start(ctx); err != nil {
				logger.Error("ops endpoint failed", logger.KeyError, err)
			}
		}()
		defer func() { _ = opsSrv.Shutdown() }()
	}

	srv := server.New(server.Config{
		Port:      cfg.Server.Port,
		EnableTCP: true,
		EnableUDP: true,
	}, st, metrics)

	return srv.Serve(ctx)
}
