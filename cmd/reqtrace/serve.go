package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/reqtrace/internal/server"
)

var serveFlags struct {
	addr     string
	logLevel string
	dryRun   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the traced demo server",
	Long: `Start the demo API with every request traced.

Routes: /, /items/:id, POST /name, /fail, /health and /metrics. /health and
/metrics are deny-listed by default. With --config, trace and logging
settings are reloaded whenever the file changes.

Examples:
  # Start with defaults
  reqtrace serve

  # Start with a config file
  reqtrace serve --config /etc/reqtrace/config.yaml

  # Override listen address
  reqtrace serve --addr :9000

  # Validate config without starting the server
  reqtrace serve --config config.yaml --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.addr, "addr", "a", "", "override listen address (host:port)")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadPath(cfgFile)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var opts []server.Option
	if cfgFile != "" {
		opts = append(opts, server.WithConfigPath(cfgFile))
	}
	srv, err := server.New(cfg, opts...)
	if err != nil {
		return err
	}
	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
		return srv.Shutdown(context.Background())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func applyServeFlags(cfg *config.Config) error {
	if serveFlags.addr != "" {
		host, port, err := net.SplitHostPort(serveFlags.addr)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %w", serveFlags.addr, err)
		}
		if host != "" {
			cfg.Server.Host = host
		}
		cfg.Server.Port = port
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}
	return nil
}
