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

// DiscoverCmd should be used to represent the 'discover' command.
type DiscoverCmd struct {
	*internalcmd.BaseCmd
	JSON bool
}

// NewDiscoverCmd creates a newly configured (Cobra) command.
func NewDiscoverCmd(baseCmd *internalcmd.BaseCmd) *cobra.Command {
	c := &DiscoverCmd{BaseCmd: baseCmd}

	cobraCommand := &cobra.Command{
		Use:   "discover",
		Short: "Print the discovered server declarations and exit",
		RunE:  c.run,
	}

	cobraCommand.Flags().BoolVar(&c.JSON, "json", false, "print declarations as JSON")

	return cobraCommand
}

func (c *DiscoverCmd) run(_ *cobra.Command, _ []string) error {
	logger := c.Logger()

	configDir, err := internalcmd.ResolveConfigDir()
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	scanner := discovery.NewScanner(logger, home, discovery.NewManualStore(configDir))
	decls, warnings := scanner.Scan()

	if c.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(decls)
	}

	for _, decl := range decls {
		target := decl.Command
		if decl.Transport == discovery.TransportSSE {
			target = decl.URL
		}
		state := ""
		if !decl.Enabled {
			state = " (disabled)"
		}
		fmt.Printf("%-24s %-9s %-8s %s%s\n", decl.Name, decl.Source, decl.Transport, target, state)
	}
	for _, warning := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning.Message)
	}
	fmt.Printf("%d server(s) discovered\n", len(decls))

	return nil
}
