package cli

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/launchpad/internal/httpserver"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the publish API server",
	Long: `Start the HTTP API that accepts publish requests, build callbacks,
task status updates and rollbacks.

The server shuts down gracefully when the process receives SIGINT or
SIGTERM. Prometheus metrics are served on /metrics when server.metrics
is enabled.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (overrides server.address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}

	app, err := openContainer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	var metrics http.Handler
	if m := app.Metrics(); m != nil {
		metrics = m.Handler()
	}

	server := httpserver.NewServer(httpserver.ServerDeps{
		Config:   cfg.Server,
		Handlers: app.Handlers(),
		Metrics:  metrics,
		Logger:   slog.Default(),
	})

	logger.Info("starting launchpad", "version", versionInfo.Version, "storage", cfg.Storage.Driver)

	return server.Start(ctx)
}
