package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"mcpcoordinator/internal/app"
)

// Exit codes for CLI commands (spec §6).
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeConfigError  = 2
	ExitCodeBackendError = 3
)

// rootCmd is the entry point for the coordinator binary.
var rootCmd = &cobra.Command{
	Use:   "mcpcoordinator",
	Short: "Multi-agent MCP coordination proxy",
	Long: `mcpcoordinator is a single MCP server that multiple coding agents
connect to. It aggregates backend MCP servers behind one JSON-RPC
endpoint, coordinates task assignment and cross-codebase dependencies
between agents, and filters the tool catalog shown to remote callers.`,
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
	app.SetVersion(v)
}

// Execute runs the CLI, exiting the process with ExitCodeError on
// failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcpcoordinator version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
}
