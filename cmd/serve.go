package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	internalcmd "github.com/mcp-portal/gateway/internal/cmd"
	"github.com/mcp-portal/gateway/internal/config"
	"github.com/mcp-portal/gateway/internal/errors"
	"github.com/mcp-portal/gateway/internal/files"
	"github.com/mcp-portal/gateway/internal/flags"
	"github.com/mcp-portal/gateway/internal/gateway"
)

// ServeCmd should be used to represent the 'serve' command.
type ServeCmd struct {
	*internalcmd.BaseCmd
}

// NewServeCmd creates a newly configured (Cobra) command.
func NewServeCmd(baseCmd *internalcmd.BaseCmd) *cobra.Command {
	c := &ServeCmd{BaseCmd: baseCmd}

	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway daemon",
		Long:  "Runs the gateway: discovers MCP servers, starts their sessions, and serves the aggregated endpoint and management API.",
		RunE:  c.run,
	}
}

// run is configured (via NewServeCmd) to be called by the Cobra framework when
// the command is executed. It may return an error (or nil, when there is no error).
func (c *ServeCmd) run(cmd *cobra.Command, _ []string) error {
	logger := c.Logger()

	configDir, err := internalcmd.ResolveConfigDir()
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}
	if err := files.EnsureAtLeastRegularDir(configDir); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}

	settings, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}

	// Flags and env vars win over the settings file, but only when set.
	if cmd.Flags().Changed(flags.FlagNameHost) || os.Getenv(flags.EnvVarHost) != "" {
		settings.Host = flags.Host
	}
	if cmd.Flags().Changed(flags.FlagNamePort) || os.Getenv(flags.EnvVarPort) != "" {
		settings.Port = flags.Port
	}
	if cmd.Flags().Changed(flags.FlagNameLogLevel) || os.Getenv(flags.EnvVarLogLevel) != "" {
		settings.LogLevel = strings.TrimSpace(flags.LogLevel)
	}

	g, err := gateway.NewGateway(logger, settings, configDir, internalcmd.Version())
	if err != nil {
		return err
	}

	runCtx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer cancel()

	fmt.Printf("mcp-portal listening on http://%s:%d (config dir: %s)\n", settings.Host, settings.Port, configDir)
	fmt.Println("Press Ctrl+C to stop.")

	return g.Run(runCtx)
}
