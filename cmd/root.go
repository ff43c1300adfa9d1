// Package cmd defines the mcp-portal CLI: serve (the default), discover, and
// config get/set.
package cmd

import (
	stdErrors "errors"
	"os"

	"github.com/spf13/cobra"

	internalcmd "github.com/mcp-portal/gateway/internal/cmd"
	"github.com/mcp-portal/gateway/internal/errors"
	"github.com/mcp-portal/gateway/internal/flags"
)

const (
	exitOK            = 0
	exitFailure       = 1
	exitConfigInvalid = 2
	exitPortInUse     = 3
)

// Execute runs the CLI and exits with the documented code.
func Execute() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

// NewRootCmd creates the root command with all subcommands attached. Running
// the binary with no subcommand serves.
func NewRootCmd() *cobra.Command {
	base := &internalcmd.BaseCmd{}

	serveCmd := NewServeCmd(base)

	rootCmd := &cobra.Command{
		Use:          "mcp-portal [command]",
		Short:        "mcp-portal aggregates MCP servers behind a single endpoint",
		Long:         longDescription(),
		SilenceUsage: true,
		Version:      internalcmd.Version(),
		RunE:         serveCmd.RunE,
	}

	// Global flags
	flags.InitFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(NewDiscoverCmd(base))
	rootCmd.AddCommand(NewConfigCmd(base))

	return rootCmd
}

func longDescription() string {
	return `mcp-portal discovers MCP server declarations from IDE configuration files,
keeps a live session to each declared server, and re-serves every tool and
resource under one namespaced MCP endpoint with a management API alongside.`
}

func exitCode(err error) int {
	switch {
	case stdErrors.Is(err, errors.ErrConfigInvalid):
		return exitConfigInvalid
	case stdErrors.Is(err, errors.ErrPortInUse):
		return exitPortInUse
	default:
		return exitFailure
	}
}
