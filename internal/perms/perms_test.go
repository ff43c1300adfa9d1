package perms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileConstantsLandOnDisk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		perm os.FileMode
	}{
		{name: "RegularFile", perm: RegularFile},
		{name: "SecureFile", perm: SecureFile},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "f")
			require.NoError(t, os.WriteFile(path, []byte("x"), tc.perm))

			info, err := os.Stat(path)
			require.NoError(t, err)
			require.Equal(t, tc.perm, info.Mode().Perm())
		})
	}
}

func TestSecureVariantsExcludeGroupAndOthers(t *testing.T) {
	t.Parallel()

	require.Zero(t, SecureFile&0o077)
	require.Zero(t, SecureDir&0o077)
	require.NotZero(t, RegularFile&0o044)
	require.NotZero(t, RegularDir&0o055)
}
