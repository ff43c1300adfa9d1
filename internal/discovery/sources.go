package discovery

import (
	"path/filepath"
	"runtime"
)

// location is a single config file to probe for one source.
type location struct {
	source Source
	path   string
	parse  parseFunc
}

// sourceLocations returns the list of config locations to probe. The primary
// dotfile locations come first, in precedence order; OS-specific variants
// (macOS Application Support, Windows Roaming) are appended after all of them.
// Paths are resolved against home. Collisions are settled by source
// precedence, not by position in this list.
func sourceLocations(home string) []location {
	join := func(parts ...string) string {
		return filepath.Join(append([]string{home}, parts...)...)
	}

	locs := []location{
		{SourceCursor, join(".cursor", "mcp.json"), parseCanonical},
		{SourceCursor, join(".cursor", "mcp_servers.json"), parseCanonical},
		{SourceVSCode, join(".vscode", "settings.json"), parseVSCode},
		{SourceClaude, join(".claude", "claude_desktop_config.json"), parseCanonical},
		{SourceWindsurf, join(".windsurf", "mcp_servers.json"), parseCanonical},
		{SourceContinue, join(".continue", "config.json"), parseContinue},
		{SourceContinue, join(".continue", "config.yaml"), parseContinueYAML},
	}

	switch runtime.GOOS {
	case "darwin":
		support := join("Library", "Application Support")
		locs = append(locs,
			location{SourceCursor, filepath.Join(support, "Cursor", "mcp.json"), parseCanonical},
			location{SourceVSCode, filepath.Join(support, "Code", "User", "settings.json"), parseVSCode},
			location{SourceClaude, filepath.Join(support, "Claude", "claude_desktop_config.json"), parseCanonical},
			location{SourceWindsurf, filepath.Join(support, "Windsurf", "mcp_servers.json"), parseCanonical},
		)
	case "windows":
		roaming := join("AppData", "Roaming")
		locs = append(locs,
			location{SourceCursor, filepath.Join(roaming, "Cursor", "mcp.json"), parseCanonical},
			location{SourceVSCode, filepath.Join(roaming, "Code", "User", "settings.json"), parseVSCode},
			location{SourceClaude, filepath.Join(roaming, "Claude", "claude_desktop_config.json"), parseCanonical},
			location{SourceWindsurf, filepath.Join(roaming, "Windsurf", "mcp_servers.json"), parseCanonical},
		)
	}

	return locs
}
