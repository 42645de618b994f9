//go:build !windows

package kernel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupHelperDeletesExecutableAndItself(t *testing.T) {
	installDir := filepath.Join(t.TempDir(), "My App's dir")
	exe := filepath.Join(installDir, UninstallerName)
	writeTree(t, installDir, map[string]string{UninstallerName: "exe"})

	s := NewSelfDeletionScheduler(t.TempDir(), 50*time.Millisecond, 100, nullLogger())
	task, err := s.Schedule(exe)
	require.NoError(t, err)
	require.NoError(t, s.Launch(task))

	gone := func(p string) bool {
		_, err := os.Stat(p)
		return os.IsNotExist(err)
	}
	require.Eventually(t, func() bool {
		return gone(exe) && gone(task.CleanupScriptPath)
	}, 10*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool { return gone(installDir) }, 5*time.Second, 50*time.Millisecond)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/tmp/a b'`, shellQuote("/tmp/a b"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
