package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	apihttp "github.com/artpar/modgate/adapters/http"
	"github.com/artpar/modgate/bootstrap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var routesJSON bool

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the compiled route table",
	Long: `Discover modules, run their lifecycle and print the route table in the
order requests walk through it. Nothing is served.

Examples:
  modgate routes
  modgate routes --json`,
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().BoolVar(&routesJSON, "json", false, "output as JSON")
}

func runRoutes(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cmd.Context(), bootstrap.Options{
		ConfigPath: cfgFile,
		Version:    version,
		Registry:   prometheus.NewRegistry(),
		LogOutput:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer app.Shutdown()

	layers := app.Table.Layers()
	if routesJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(layers)
	}
	printLayers(cmd.OutOrStdout(), layers)
	return nil
}

func printLayers(out io.Writer, layers []apihttp.Layer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tKIND\tROUTER\tPRIORITY\tMETHOD\tPATH\tHANDLER\tMIDDLEWARE")
	fmt.Fprintln(w, "-\t----\t------\t--------\t------\t----\t-------\t----------")

	for i, l := range layers {
		router, priority, method, path := "-", "-", "-", "-"
		if l.Kind == apihttp.LayerRoute {
			router = l.Router
			priority = fmt.Sprint(l.Priority)
			method = l.Method
			if method == "" {
				method = "*"
			}
			path = l.Path
		}
		handler := l.Handler
		if handler == "" {
			handler = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i, l.Kind, router, priority, method, path, handler, strings.Join(l.Middleware, ","))
	}

	w.Flush()
}
