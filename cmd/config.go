package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	internalcmd "github.com/mcp-portal/gateway/internal/cmd"
	"github.com/mcp-portal/gateway/internal/discovery"
	"github.com/mcp-portal/gateway/internal/errors"
)

// ConfigCmd should be used to represent the 'config' command group.
type ConfigCmd struct {
	*internalcmd.BaseCmd
}

// NewConfigCmd creates a newly configured (Cobra) command.
func NewConfigCmd(baseCmd *internalcmd.BaseCmd) *cobra.Command {
	c := &ConfigCmd{BaseCmd: baseCmd}

	cobraCommand := &cobra.Command{
		Use:   "config",
		Short: "Inspect or replace the gateway's manual configuration",
	}

	cobraCommand.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the manual configuration document",
		RunE:  c.runGet,
	})

	cobraCommand.AddCommand(&cobra.Command{
		Use:   "set PATH",
		Short: "Replace the manual configuration document from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runSet,
	})

	return cobraCommand
}

func (c *ConfigCmd) runGet(_ *cobra.Command, _ []string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	doc, err := store.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func (c *ConfigCmd) runSet(_ *cobra.Command, args []string) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("%w: could not read '%s': %w", errors.ErrConfigInvalid, args[0], err)
	}

	var doc discovery.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: '%s' is not valid JSON: %w", errors.ErrConfigInvalid, args[0], err)
	}
	for name, entry := range doc.MCPServers {
		if _, err := entry.Decl(name, discovery.SourceManual); err != nil {
			return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
		}
	}

	if err := store.Write(doc); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}

	fmt.Printf("wrote %d server(s) to %s\n", len(doc.MCPServers), store.Path())
	return nil
}

func (c *ConfigCmd) store() (*discovery.ManualStore, error) {
	configDir, err := internalcmd.ResolveConfigDir()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}
	return discovery.NewManualStore(configDir), nil
}
