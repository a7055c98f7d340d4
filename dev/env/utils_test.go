package devenv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	plain, err := ResolvePath("lotwatch.db")
	require.NoError(t, err)
	require.Equal(t, "lotwatch.db", plain)

	resolved, err := ResolvePath("<dev_state>/cache/pages")
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(resolved))
	require.Equal(t, filepath.Join("dev", ".state", "cache", "pages"), lastN(resolved, 4))
}

func lastN(path string, n int) string {
	parts := []string{}
	for i := 0; i < n; i++ {
		parts = append([]string{filepath.Base(path)}, parts...)
		path = filepath.Dir(path)
	}
	return filepath.Join(parts...)
}
