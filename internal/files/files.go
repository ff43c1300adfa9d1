// Package files provides filesystem helpers shared across the gateway:
// XDG-aware config directory resolution and atomic file replacement.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcp-portal/gateway/internal/perms"
)

// EnvVarXDGConfigHome is the XDG Base Directory env var name for config files.
const EnvVarXDGConfigHome = "XDG_CONFIG_HOME"

// AppDirName returns the name of the application directory for use in user-specific operations where data is being written.
func AppDirName() string {
	return "mcp-portal"
}

// UserSpecificConfigDir returns the directory that should be used to store any user-specific configuration.
// It adheres to the XDG Base Directory Specification, respecting the XDG_CONFIG_HOME environment variable.
// When XDG_CONFIG_HOME is not set, it defaults to ~/.config/mcp-portal
// See: https://specifications.freedesktop.org/basedir-spec/latest/
func UserSpecificConfigDir() (string, error) {
	base := strings.TrimSpace(os.Getenv(EnvVarXDGConfigHome))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}

	return filepath.Join(base, AppDirName()), nil
}

// EnsureAtLeastRegularDir creates a directory with regular permissions if it doesn't exist,
// and verifies that it is a directory (not a symlink) if it already exists.
func EnsureAtLeastRegularDir(path string) error {
	if err := os.MkdirAll(path, perms.RegularDir); err != nil {
		return fmt.Errorf("could not ensure directory exists for '%s': %w", path, err)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("could not stat directory '%s': %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("directory '%s' is a symlink, refusing to use it", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("path '%s' exists but is not a directory", path)
	}

	return nil
}

// WriteAtomic replaces the file at path with data via a temp file and rename,
// so readers never observe a partially written file. The temp file is created
// in the same directory to keep the rename on one filesystem.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureAtLeastRegularDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create temp file in '%s': %w", dir, err)
	}
	tmpName := tmp.Name()

	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not write temp file '%s': %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not sync temp file '%s': %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temp file '%s': %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("could not set permissions on temp file '%s': %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("could not replace '%s': %w", path, err)
	}

	return nil
}
