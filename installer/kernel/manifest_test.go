package kernel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkEmitsEveryFileOnce(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.bin":          "a",
		"sub/b.bin":      "b",
		"sub/c.bin":      "c",
		"sub/deep/d.txt": "d",
	})

	entries, err := Walk(src)
	require.NoError(t, err)

	var rels []string
	for _, e := range entries {
		rels = append(rels, filepath.ToSlash(e.RelativePath))
		assert.True(t, filepath.IsAbs(e.SourcePath))
		assert.Equal(t, filepath.Join(src, e.RelativePath), e.SourcePath)
	}
	sort.Strings(rels)
	assert.Equal(t, []string{"a.bin", "sub/b.bin", "sub/c.bin", "sub/deep/d.txt"}, rels)
}

func TestWalkFollowsFileSymlinks(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"lib/real.dll": "dll",
		"dir/x.txt":    "x",
	})
	if err := os.Symlink(filepath.Join(src, "lib", "real.dll"), filepath.Join(src, "alias.dll")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(src, "dir"), filepath.Join(src, "dirlink")))
	require.NoError(t, os.Symlink(filepath.Join(src, "missing"), filepath.Join(src, "dangling")))

	entries, err := Walk(src)
	require.NoError(t, err)
	var rels []string
	for _, e := range entries {
		rels = append(rels, filepath.ToSlash(e.RelativePath))
	}
	sort.Strings(rels)
	assert.Equal(t, []string{"alias.dll", "dir/x.txt", "lib/real.dll"}, rels)

	target := InstallationTarget{RootPath: filepath.Join(t.TempDir(), "MyApp")}
	require.NoError(t, NewFileDeployer(nullLogger()).Deploy(context.Background(), entries, target, nil))
	data, err := os.ReadFile(filepath.Join(target.RootPath, "alias.dll"))
	require.NoError(t, err)
	assert.Equal(t, "dll", string(data))
	info, err := os.Lstat(filepath.Join(target.RootPath, "alias.dll"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestWalkEmptyDirectory(t *testing.T) {
	entries, err := Walk(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWalkSourceMissing(t *testing.T) {
	_, err := Walk(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceMissing))
}

func TestDetectAnyExe(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"uninstall.exe":  "u",
		"readme.txt":     "r",
		"bin/webapp.exe": "w",
		"bin/helper.dll": "h",
	})
	assert.Equal(t, filepath.Join(root, "bin", "webapp.exe"), detectAnyExe(root))
	assert.Empty(t, detectAnyExe(filepath.Join(root, "missing")))
}
