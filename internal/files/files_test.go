package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-portal/gateway/internal/perms"
)

func TestWriteAtomic_CreatesFileAndParents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "out.json")
	require.NoError(t, WriteAtomic(path, []byte(`{"a":1}`), perms.RegularFile))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, perms.RegularFile, info.Mode().Perm())
}

func TestWriteAtomic_ReplacesWithoutLeavingTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, WriteAtomic(path, []byte("one"), perms.RegularFile))
	require.NoError(t, WriteAtomic(path, []byte("two"), perms.RegularFile))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestUserSpecificConfigDir_RespectsXDG(t *testing.T) {
	base := t.TempDir()
	t.Setenv(EnvVarXDGConfigHome, base)

	dir, err := UserSpecificConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, AppDirName()), dir)
}

func TestEnsureAtLeastRegularDir_RejectsFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	err := EnsureAtLeastRegularDir(file)
	require.Error(t, err)
}
