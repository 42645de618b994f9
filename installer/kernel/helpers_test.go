package kernel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func nullLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	files, _, err := listTree(root)
	require.NoError(t, err)
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		out[filepath.ToSlash(rel)] = string(data)
	}
	return out
}
