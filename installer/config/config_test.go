package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "installer.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad(t *testing.T) {
	p := writeConfig(t, `
product:
  name: WebApp
  exeName: webapp.exe
  version: 2.1.0
  publisher: Acme
install:
  createDesktopShortcut: false
  gracePeriod: 2s
uninstall:
  pollInterval: 250ms
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "WebApp", cfg.Product.Name)
	assert.Equal(t, "WebApp", cfg.Product.ShortcutName)
	assert.False(t, cfg.Install.DesktopShortcut())
	assert.Equal(t, 2*time.Second, cfg.Install.GracePeriod)
	assert.Equal(t, 250*time.Millisecond, cfg.Uninstall.PollInterval)
	assert.Equal(t, 120, cfg.Uninstall.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("product:\n  name: Notes\n"))
	require.NoError(t, err)
	assert.Equal(t, "Notes.exe", cfg.Product.ExeName)
	assert.True(t, cfg.Install.DesktopShortcut())
	assert.Equal(t, 1500*time.Millisecond, cfg.Install.GracePeriod)
	assert.Equal(t, time.Second, cfg.Uninstall.PollInterval)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INSTALLER_INSTALL_DIR", "/opt/apps")
	t.Setenv("INSTALLER_DESKTOP_SHORTCUT", "false")
	t.Setenv("INSTALLER_GRACE_PERIOD", "3s")

	cfg, err := Parse([]byte("product:\n  name: Notes\n"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/apps", cfg.Install.Dir)
	assert.False(t, cfg.Install.DesktopShortcut())
	assert.Equal(t, 3*time.Second, cfg.Install.GracePeriod)
}

func TestParseMetaIgnoresEnvironment(t *testing.T) {
	t.Setenv("INSTALLER_PRODUCT_NAME", "Other")
	t.Setenv("INSTALLER_INSTALL_DIR", "/tmp/elsewhere")

	cfg, err := ParseMeta([]byte("product:\n  name: Notes\n"))
	require.NoError(t, err)
	assert.Equal(t, "Notes", cfg.Product.Name)
	assert.Equal(t, "Notes.exe", cfg.Product.ExeName)
	assert.Empty(t, cfg.Install.Dir)

	loaded, err := Load(writeConfig(t, "product:\n  name: Notes\n"))
	require.NoError(t, err)
	assert.Equal(t, "Other", loaded.Product.Name)
	assert.Equal(t, "/tmp/elsewhere", loaded.Install.Dir)
}

func TestNormalizeDefaults(t *testing.T) {
	t.Setenv("INSTALLER_PRODUCT_NAME", "Other")
	cfg, err := Normalize(&Config{})
	require.NoError(t, err)
	assert.Equal(t, "MyApp", cfg.Product.Name)
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("INSTALLER_DESKTOP_SHORTCUT", "maybe")
	_, err := Parse([]byte("product:\n  name: Notes\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"latest version", "product: {name: A, version: latest}", false},
		{"semver", "product: {name: A, version: 1.0.0-beta.2}", false},
		{"bad version", "product: {name: A, version: not.a.version!}", true},
		{"path in name", `product: {name: "a/b"}`, true},
		{"path in exe", `product: {name: A, exeName: "bin/a.exe"}`, true},
		{"negative attempts", "product: {name: A}\nuninstall: {maxAttempts: -1}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
