// Package cmd holds shared plumbing for the CLI commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/mcp-portal/gateway/internal/files"
	"github.com/mcp-portal/gateway/internal/flags"
)

// version is set at build time using -ldflags.
var version = "dev"

// Version returns the build version of the binary.
func Version() string {
	return version
}

// BaseCmd carries the pieces every command needs.
type BaseCmd struct {
	logger hclog.Logger
}

// SetLogger updates the command's logger.
func (c *BaseCmd) SetLogger(logger hclog.Logger) {
	c.logger = logger
}

// Logger returns the current logger for the command, building one from the
// global flags on first use.
func (c *BaseCmd) Logger() hclog.Logger {
	if c.logger != nil {
		return c.logger
	}

	// Logs go to stderr by default so serve console output stays readable;
	// MCP_PORTAL_LOG_PATH redirects them to a file.
	var output io.Writer = os.Stderr
	if flags.LogPath != "" {
		f, err := os.OpenFile(flags.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file (%s): %v, using stderr\n", flags.LogPath, err)
		} else {
			output = f
		}
	}

	c.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "mcp-portal",
		Level:  hclog.LevelFromString(flags.LogLevel),
		Output: output,
	})

	return c.logger
}

// ResolveConfigDir returns the directory holding the gateway's own files: the
// --config-dir flag / MCP_PORTAL_CONFIG_DIR override when set, otherwise the
// XDG default.
func ResolveConfigDir() (string, error) {
	if flags.ConfigDir != "" {
		return flags.ConfigDir, nil
	}

	return files.UserSpecificConfigDir()
}
