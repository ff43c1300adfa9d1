package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScanner(t *testing.T) (*Scanner, string, *ManualStore) {
	t.Helper()

	home := t.TempDir()
	manual := NewManualStore(filepath.Join(home, ".config", "mcp-portal"))
	scanner := NewScanner(hclog.NewNullLogger(), home, manual)

	return scanner, home, manual
}

func writeConfig(t *testing.T, home string, parts ...string) {
	t.Helper()

	content := parts[len(parts)-1]
	path := filepath.Join(append([]string{home}, parts[:len(parts)-1]...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_CursorConfig(t *testing.T) {
	t.Parallel()

	scanner, home, _ := testScanner(t)
	writeConfig(t, home, ".cursor", "mcp.json", `{
		"mcpServers": {
			"alpha": {"command": "echo-tool", "args": ["--stdio"], "env": {"KEY": "v"}}
		}
	}`)

	decls, warnings := scanner.Scan()
	require.Len(t, decls, 1)
	assert.Empty(t, warnings)

	decl := decls[0]
	assert.Equal(t, "alpha", decl.Name)
	assert.Equal(t, SourceCursor, decl.Source)
	assert.Equal(t, TransportStdio, decl.Transport)
	assert.Equal(t, "echo-tool", decl.Command)
	assert.Equal(t, []string{"--stdio"}, decl.Args)
	assert.Equal(t, map[string]string{"KEY": "v"}, decl.Env)
	assert.True(t, decl.Enabled)
	assert.Equal(t, DefaultTimeoutSeconds, decl.TimeoutSeconds)
	assert.Equal(t, DefaultMaxRetries, decl.MaxRetries)
}

func TestScan_URLEntryBecomesSSE(t *testing.T) {
	t.Parallel()

	scanner, home, _ := testScanner(t)
	writeConfig(t, home, ".cursor", "mcp.json", `{
		"mcpServers": {
			"remote": {"url": "http://localhost:3000/sse"}
		}
	}`)

	decls, _ := scanner.Scan()
	require.Len(t, decls, 1)
	assert.Equal(t, TransportSSE, decls[0].Transport)
	assert.Equal(t, "http://localhost:3000/sse", decls[0].URL)
}

func TestScan_VSCodeSettingsShape(t *testing.T) {
	t.Parallel()

	scanner, home, _ := testScanner(t)
	writeConfig(t, home, ".vscode", "settings.json", `{
		"editor.fontSize": 12,
		"mcp": {"servers": {"tools": {"command": "vsc-tool"}}}
	}`)

	decls, _ := scanner.Scan()
	require.Len(t, decls, 1)
	assert.Equal(t, SourceVSCode, decls[0].Source)
	assert.Equal(t, "vsc-tool", decls[0].Command)
}

func TestScan_ContinueYAML(t *testing.T) {
	t.Parallel()

	scanner, home, _ := testScanner(t)
	writeConfig(t, home, ".continue", "config.yaml", `
mcp:
  servers:
    helper:
      command: helper-bin
      args:
        - serve
`)

	decls, _ := scanner.Scan()
	require.Len(t, decls, 1)
	assert.Equal(t, SourceContinue, decls[0].Source)
	assert.Equal(t, "helper-bin", decls[0].Command)
	assert.Equal(t, []string{"serve"}, decls[0].Args)
}

func TestScan_PrecedenceCursorOverWindsurf(t *testing.T) {
	t.Parallel()

	scanner, home, _ := testScanner(t)
	writeConfig(t, home, ".cursor", "mcp.json", `{"mcpServers": {"alpha": {"command": "cursor-cmd"}}}`)
	writeConfig(t, home, ".windsurf", "mcp_servers.json", `{"mcpServers": {"alpha": {"command": "windsurf-cmd"}}}`)

	decls, warnings := scanner.Scan()
	require.Len(t, decls, 1)
	assert.Equal(t, "cursor-cmd", decls[0].Command)
	assert.Equal(t, SourceCursor, decls[0].Source)

	require.Len(t, warnings, 1)
	assert.Equal(t, SourceWindsurf, warnings[0].Source)
	assert.Equal(t, "alpha", warnings[0].Name)
	assert.Contains(t, warnings[0].Message, "lower precedence dropped")
}

func TestScan_ManualWinsEverything(t *testing.T) {
	t.Parallel()

	scanner, home, manual := testScanner(t)
	writeConfig(t, home, ".cursor", "mcp.json", `{"mcpServers": {"alpha": {"command": "cursor-cmd"}}}`)
	require.NoError(t, manual.Write(Document{MCPServers: map[string]Entry{
		"alpha": {Command: "manual-cmd"},
	}}))

	decls, warnings := scanner.Scan()
	require.Len(t, decls, 1)
	assert.Equal(t, SourceManual, decls[0].Source)
	assert.Equal(t, "manual-cmd", decls[0].Command)
	require.Len(t, warnings, 1)
	assert.Equal(t, SourceCursor, warnings[0].Source)
}

func TestScan_MalformedFileIsSkippedNotFatal(t *testing.T) {
	t.Parallel()

	scanner, home, _ := testScanner(t)
	writeConfig(t, home, ".cursor", "mcp.json", `{not json`)
	writeConfig(t, home, ".windsurf", "mcp_servers.json", `{"mcpServers": {"beta": {"command": "ok"}}}`)

	decls, warnings := scanner.Scan()
	require.Len(t, decls, 1)
	assert.Equal(t, "beta", decls[0].Name)
	require.NotEmpty(t, warnings)
	assert.Equal(t, SourceCursor, warnings[0].Source)
}

func TestScan_InvalidDeclarationIsDropped(t *testing.T) {
	t.Parallel()

	scanner, home, _ := testScanner(t)
	// No command and no url: undeclarable.
	writeConfig(t, home, ".cursor", "mcp.json", `{"mcpServers": {"broken": {"env": {"A": "1"}}}}`)

	decls, warnings := scanner.Scan()
	assert.Empty(t, decls)
	require.Len(t, warnings, 1)
	assert.Equal(t, "broken", warnings[0].Name)
}

func TestScan_DisabledEntryStaysDeclared(t *testing.T) {
	t.Parallel()

	scanner, home, _ := testScanner(t)
	writeConfig(t, home, ".cursor", "mcp.json", `{"mcpServers": {"off": {"command": "tool", "enabled": false}}}`)

	decls, _ := scanner.Scan()
	require.Len(t, decls, 1)
	assert.False(t, decls[0].Enabled)
}

func TestEntryDecl_ExplicitTypeWins(t *testing.T) {
	t.Parallel()

	entry := Entry{URL: "http://localhost:9999", Type: "sse"}
	decl, err := entry.Decl("svc", SourceManual)
	require.NoError(t, err)
	assert.Equal(t, TransportSSE, decl.Transport)

	entry = Entry{Command: "tool", Type: "stdio"}
	decl, err = entry.Decl("svc", SourceManual)
	require.NoError(t, err)
	assert.Equal(t, TransportStdio, decl.Transport)

	_, err = entry.Decl("", SourceManual)
	require.Error(t, err)
}
