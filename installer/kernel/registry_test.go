package kernel

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore 对指定值名写入失败，其余委托给 FileKeyStore。
type flakyStore struct {
	*FileKeyStore
	failOn map[string]bool
}

func (s *flakyStore) SetString(key, name, value string) error {
	if s.failOn[name] {
		return errors.New("reserved name")
	}
	return s.FileKeyStore.SetString(key, name, value)
}

func sampleEntrySet() RegistryEntrySet {
	return RegistryEntrySet{
		DisplayName:     "MyApp",
		DisplayIcon:     `C:\Users\me\AppData\Local\MyApp\webapp.exe,0`,
		UninstallString: `"C:\Users\me\AppData\Local\MyApp\uninstall.exe" --uninstall`,
		DisplayVersion:  "1.2.3",
		Publisher:       "Acme",
		InstallLocation: `C:\Users\me\AppData\Local\MyApp`,
		NoModify:        true,
		NoRepair:        true,
	}
}

func TestRegisterWritesAllValues(t *testing.T) {
	store := NewFileKeyStore(filepath.Join(t.TempDir(), "registry.yaml"))
	r := NewRegistryRegistrar(store, nullLogger())

	require.NoError(t, r.Register("MyApp", sampleEntrySet(), AppKeyValues{InstallDir: "dir", ExePath: "exe", Version: "1.2.3"}))

	vals, err := store.Values(UninstallKeyPath("MyApp"))
	require.NoError(t, err)
	assert.Equal(t, "MyApp", vals["DisplayName"])
	assert.Equal(t, "1.2.3", vals["DisplayVersion"])
	assert.Equal(t, "Acme", vals["Publisher"])
	assert.EqualValues(t, 1, vals["NoModify"])
	assert.EqualValues(t, 1, vals["NoRepair"])
	assert.NotContains(t, vals, "QuietUninstallString")

	app, err := store.Values(AppKeyPath("MyApp"))
	require.NoError(t, err)
	assert.Equal(t, "dir", app["InstallDir"])
}

func TestRegisterContinuesPastFailingValue(t *testing.T) {
	store := &flakyStore{
		FileKeyStore: NewFileKeyStore(filepath.Join(t.TempDir(), "registry.yaml")),
		failOn:       map[string]bool{"Publisher": true},
	}
	r := NewRegistryRegistrar(store, nullLogger())

	err := r.Register("MyApp", sampleEntrySet(), AppKeyValues{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Publisher")

	vals, err := store.Values(UninstallKeyPath("MyApp"))
	require.NoError(t, err)
	assert.NotContains(t, vals, "Publisher")
	assert.Equal(t, "MyApp", vals["DisplayName"])
	assert.Contains(t, vals, "InstallLocation")
	assert.Contains(t, vals, "NoRepair")
}

func TestUnregister(t *testing.T) {
	store := NewFileKeyStore(filepath.Join(t.TempDir(), "registry.yaml"))
	r := NewRegistryRegistrar(store, nullLogger())
	require.NoError(t, r.Register("MyApp", sampleEntrySet(), AppKeyValues{}))

	require.NoError(t, r.Unregister("MyApp"))
	_, err := store.Values(UninstallKeyPath("MyApp"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// 再次删除：键已不存在，视为已清理
	assert.NoError(t, r.Unregister("MyApp"))
}

func TestKeyPaths(t *testing.T) {
	assert.Equal(t, `Software\Microsoft\Windows\CurrentVersion\Uninstall\MyApp`, UninstallKeyPath("MyApp"))
	assert.Equal(t, `Software\MyApp`, AppKeyPath("MyApp"))
}

func TestInstalledLocation(t *testing.T) {
	store := NewFileKeyStore(filepath.Join(t.TempDir(), "registry.yaml"))
	r := NewRegistryRegistrar(store, nullLogger())
	base := t.TempDir()

	_, err := r.InstalledLocation("MyApp")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	custom := filepath.Join(base, "Apps", "MyApp")
	require.NoError(t, r.Register("MyApp", RegistryEntrySet{InstallLocation: custom}, AppKeyValues{InstallDir: custom}))
	dir, err := r.InstalledLocation("MyApp")
	require.NoError(t, err)
	assert.Equal(t, custom, dir)

	// 应用键被改成其它目录时，回退到 Uninstall 键
	require.NoError(t, store.SetString(AppKeyPath("MyApp"), "InstallDir", base))
	dir, err = r.InstalledLocation("MyApp")
	require.NoError(t, err)
	assert.Equal(t, custom, dir)

	// 两处都不以产品名结尾：拒绝
	require.NoError(t, store.SetString(UninstallKeyPath("MyApp"), "InstallLocation", filepath.Join(base, "Other")))
	_, err = r.InstalledLocation("MyApp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected location")

	require.NoError(t, store.SetString(AppKeyPath("MyApp"), "InstallDir", "MyApp"))
	_, err = r.InstalledLocation("MyApp")
	assert.Error(t, err)
}
