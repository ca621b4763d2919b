package main

import (
	"fmt"
	"os"

	"github.com/artpar/modgate/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the modgate configuration file.

Checks:
  - YAML syntax is valid
  - Values are in range (port, log format, timezone, metrics path)

Examples:
  modgate validate
  modgate validate --config /etc/modgate/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config syntax valid\n", checkMark)

	guard := "disabled"
	if cfg.Routing.Predictive404 {
		guard = fmt.Sprintf("enabled (priority %v)", cfg.Routing.Threshold())
	}
	fmt.Fprintf(out, "  %s Listen address: %s\n", checkMark, cfg.Server.Addr())
	fmt.Fprintf(out, "  %s Predictive 404: %s\n", checkMark, guard)
	fmt.Fprintf(out, "  %s Logging: %s (%s, %s)\n", checkMark, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Timezone)
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  %s Metrics: %s\n", checkMark, cfg.Metrics.Path)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
