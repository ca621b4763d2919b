package main

import (
	"fmt"

	"github.com/artpar/modgate/bootstrap"
	"github.com/spf13/cobra"
)

var (
	watchConfig bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the modgate HTTP server.

The server will:
  - Load configuration from modgate.yaml (or --config)
  - Or load configuration from MODGATE_* environment variables
  - Discover modules and run their injection, configuration and
    initialization hooks
  - Compile the route table and start listening

Environment variables:
  MODGATE_SERVER_PORT              - Server port (default: 8080)
  MODGATE_PREDICTIVE_404           - Answer 404 before running middleware
  MODGATE_PREDICTIVE_404_PRIORITY  - Router priority the guard is placed at
  MODGATE_LOG_LEVEL                - Log level: debug, info, warn, error
  MODGATE_METRICS_ENABLED          - Serve Prometheus metrics

Examples:
  modgate serve
  modgate serve --config /etc/modgate/config.yaml
  modgate serve --watch=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&watchConfig, "watch", true, "reload logging settings when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cmd.Context(), bootstrap.Options{
		ConfigPath: cfgFile,
		Watch:      watchConfig,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
