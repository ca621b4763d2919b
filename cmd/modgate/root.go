package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modgate",
	Short: "Module-driven HTTP server bootstrap",
	Long: `modgate discovers service and router modules, runs them through their
lifecycle, and serves the compiled route table over HTTP.

Quick start:
  modgate serve     # Start the server
  modgate routes    # Print the compiled route table
  modgate validate  # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "modgate.yaml", "config file path")
}
