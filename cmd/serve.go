package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mcpcoordinator/internal/app"
)

// newServeCmd builds the serve command: it starts the coordinator process,
// aggregating the backend MCP servers named in the configuration document
// and exposing them through whichever Transport Adapters the configured
// interface mode selects.
func newServeCmd() *cobra.Command {
	var (
		debug      bool
		configPath string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the coordinator process",
		Long: `Starts the coordinator: loads the external-server configuration
document, launches its backend MCP servers under supervision, and serves
the aggregated tool catalog over the configured Transport Adapters
(stdio, HTTP, or WebSocket — selected via MCP_INTERFACE_MODE).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.NewConfig(debug, configPath, watch)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			application, err := app.NewApplication(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize coordinator: %w", err)
			}
			return application.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "enable verbose logging")
	cmd.Flags().StringVar(&configPath, "config-path", "", "path to the external-server configuration document (JSON)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the configuration document on change")

	return cmd
}
