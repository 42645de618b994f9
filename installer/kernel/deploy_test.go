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

func TestDeployThreeFiles(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.bin":     "aaa",
		"sub/b.bin": "bbb",
		"sub/c.bin": "ccc",
	})
	manifest, err := Walk(src)
	require.NoError(t, err)

	target := InstallationTarget{RootPath: filepath.Join(t.TempDir(), "MyApp")}
	var events []DeploymentProgress
	err = NewFileDeployer(nullLogger()).Deploy(context.Background(), manifest, target, func(p DeploymentProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	var percents []int
	for i, e := range events {
		assert.Equal(t, i+1, e.FilesCopied)
		assert.Equal(t, 3, e.TotalFiles)
		percents = append(percents, e.Percent())
	}
	assert.Equal(t, []int{33, 67, 100}, percents)

	assert.Equal(t, map[string]string{
		"a.bin":     "aaa",
		"sub/b.bin": "bbb",
		"sub/c.bin": "ccc",
	}, readTree(t, target.RootPath))
}

func TestDeployIsIdempotent(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"app.exe": "v2", "assets/index.html": "<html>"})
	manifest, err := Walk(src)
	require.NoError(t, err)

	target := InstallationTarget{RootPath: t.TempDir()}
	// 旧版本内容应被覆盖
	writeTree(t, target.RootPath, map[string]string{"app.exe": "v1-longer-content"})

	d := NewFileDeployer(nullLogger())
	require.NoError(t, d.Deploy(context.Background(), manifest, target, nil))
	first := readTree(t, target.RootPath)
	require.NoError(t, d.Deploy(context.Background(), manifest, target, nil))

	assert.Equal(t, first, readTree(t, target.RootPath))
	assert.Equal(t, "v2", first["app.exe"])
}

func TestDeployProgressMonotonic(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{}
	for _, n := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		files["d"+n+"/f"+n] = n
	}
	writeTree(t, src, files)
	manifest, err := Walk(src)
	require.NoError(t, err)

	var last DeploymentProgress
	err = NewFileDeployer(nullLogger()).Deploy(context.Background(), manifest, InstallationTarget{RootPath: t.TempDir()}, func(p DeploymentProgress) {
		assert.Equal(t, last.FilesCopied+1, p.FilesCopied)
		last = p
	})
	require.NoError(t, err)
	assert.Equal(t, len(files), last.FilesCopied)
	assert.Equal(t, 100, last.Percent())
}

func TestDeployCopyFailureIsFatal(t *testing.T) {
	manifest := []FileManifestEntry{
		{SourcePath: filepath.Join(t.TempDir(), "gone.bin"), RelativePath: "gone.bin"},
	}
	err := NewFileDeployer(nullLogger()).Deploy(context.Background(), manifest, InstallationTarget{RootPath: t.TempDir()}, nil)
	require.Error(t, err)
	var stepErr *StepError
	assert.True(t, errors.As(err, &stepErr))
}

func TestDeployRejectsEscapingEntry(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"x": "x"})
	manifest := []FileManifestEntry{{SourcePath: filepath.Join(src, "x"), RelativePath: "../x"}}
	err := NewFileDeployer(nullLogger()).Deploy(context.Background(), manifest, InstallationTarget{RootPath: t.TempDir()}, nil)
	assert.True(t, errors.Is(err, ErrPathEscape))
}

func TestDeployStopsOnCancel(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a": "a", "b": "b"})
	manifest, err := Walk(src)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err = NewFileDeployer(nullLogger()).Deploy(ctx, manifest, InstallationTarget{RootPath: t.TempDir()}, func(DeploymentProgress) {
		calls++
		cancel()
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestRemoveKeepsRunningExecutable(t *testing.T) {
	target := InstallationTarget{RootPath: filepath.Join(t.TempDir(), "MyApp")}
	writeTree(t, target.RootPath, map[string]string{
		"app.exe":           "app",
		"uninstall.exe":     "uninstaller",
		"assets/index.html": "<html>",
		"assets/js/app.js":  "js",
	})
	exe := filepath.Join(target.RootPath, "uninstall.exe")
	before, err := os.Stat(exe)
	require.NoError(t, err)

	var names []string
	res, err := NewFileDeployer(nullLogger()).Remove(context.Background(), target, exe, func(p UninstallProgress) {
		names = append(names, filepath.ToSlash(p.CurrentFileName))
	})
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Equal(t, 3, res.Deleted)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Remaining)
	assert.Equal(t, map[string]string{"uninstall.exe": "uninstaller"}, readTree(t, target.RootPath))

	after, err := os.Stat(exe)
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after))

	sort.Strings(names)
	assert.Equal(t, []string{"app.exe", "assets/index.html", "assets/js/app.js", "uninstall.exe"}, names)
	_, err = os.Stat(filepath.Join(target.RootPath, "assets"))
	assert.True(t, os.IsNotExist(err), "empty directories should be removed")
}

func TestRemoveWholeTreeWithoutExclusion(t *testing.T) {
	target := InstallationTarget{RootPath: filepath.Join(t.TempDir(), "MyApp")}
	writeTree(t, target.RootPath, map[string]string{"a": "a", "sub/b": "b"})

	res, err := NewFileDeployer(nullLogger()).Remove(context.Background(), target, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	_, err = os.Stat(target.RootPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveMissingTargetIsClean(t *testing.T) {
	res, err := NewFileDeployer(nullLogger()).Remove(context.Background(),
		InstallationTarget{RootPath: filepath.Join(t.TempDir(), "never-installed")}, "", nil)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.NoError(t, res.Err())
}
