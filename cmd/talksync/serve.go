package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"talksync/pkg/logger"
	"talksync/pkg/metrics"
	"talksync/pkg/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the archive over HTTP",
	Long: `Serve the archived messages and media over HTTP.

Endpoints:
  GET  /messages                      archived messages, oldest id first
                                      (group, member, date=YYYYMMDD, limit, offset)
  GET  /files/<group>/<member>/<file> one archived file
  POST /manual/sync                   start a sync run in the background
  GET  /healthz                       server and last run status
  GET  /metrics                       Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := globalFlags(cmd)
	if serveAddr != "" {
		flags["addr"] = serveAddr
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	srv := server.New(cfg, newDriver(cfg, log, rec), rec, log)
	if err := srv.Start(ctx); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("server failed: %w", err)}
	}
	return nil
}
