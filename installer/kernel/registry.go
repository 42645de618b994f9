package kernel

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// RegistryEntrySet HKCU\...\Uninstall\<ProductName> 下的值，供“应用和功能”显示和卸载。
type RegistryEntrySet struct {
	DisplayName          string
	DisplayIcon          string
	UninstallString      string
	QuietUninstallString string
	DisplayVersion       string
	Publisher            string
	InstallLocation      string
	NoModify             bool
	NoRepair             bool
}

// AppKeyValues HKCU\Software\<ProductName> 下的值。
type AppKeyValues struct {
	InstallDir string
	ExePath    string
	Version    string
}

// KeyStore 注册表的最小抽象。每次写入都是独立的一次调用。
type KeyStore interface {
	SetString(key, name, value string) error
	SetDWord(key, name string, value uint32) error
	// GetString 键或值不存在时返回 ErrKeyNotFound。
	GetString(key, name string) (string, error)
	// DeleteKey 键不存在时返回 ErrKeyNotFound。
	DeleteKey(key string) error
}

func UninstallKeyPath(productName string) string {
	return `Software\Microsoft\Windows\CurrentVersion\Uninstall\` + productName
}

func AppKeyPath(productName string) string {
	return `Software\` + productName
}

type registryValue struct {
	name  string
	str   string
	dword *uint32
}

func dword(b bool) *uint32 {
	var v uint32
	if b {
		v = 1
	}
	return &v
}

func (s RegistryEntrySet) values() []registryValue {
	vals := []registryValue{
		{name: "DisplayName", str: s.DisplayName},
		{name: "DisplayIcon", str: s.DisplayIcon},
		{name: "UninstallString", str: s.UninstallString},
		{name: "DisplayVersion", str: s.DisplayVersion},
		{name: "Publisher", str: s.Publisher},
		{name: "InstallLocation", str: s.InstallLocation},
		{name: "NoModify", dword: dword(s.NoModify)},
		{name: "NoRepair", dword: dword(s.NoRepair)},
	}
	if s.QuietUninstallString != "" {
		vals = append(vals, registryValue{name: "QuietUninstallString", str: s.QuietUninstallString})
	}
	return vals
}

// RegistryRegistrar 写入/删除卸载信息。每个值独立写入，单个失败不影响其它值；
// 卸载信息只影响可发现性，不影响程序运行，所以错误只做降级处理。
type RegistryRegistrar struct {
	store KeyStore
	log   logrus.FieldLogger
}

func NewRegistryRegistrar(store KeyStore, log logrus.FieldLogger) *RegistryRegistrar {
	return &RegistryRegistrar{store: store, log: log}
}

// Register 写入 Uninstall 键和应用键，返回所有失败值的汇总。
func (r *RegistryRegistrar) Register(productName string, set RegistryEntrySet, app AppKeyValues) error {
	if productName == "" {
		return fmt.Errorf("empty product name")
	}
	var result *multierror.Error
	key := UninstallKeyPath(productName)
	for _, v := range set.values() {
		result = multierror.Append(result, r.write(key, v))
	}
	appKey := AppKeyPath(productName)
	for _, v := range []registryValue{
		{name: "InstallDir", str: app.InstallDir},
		{name: "ExePath", str: app.ExePath},
		{name: "Version", str: app.Version},
	} {
		result = multierror.Append(result, r.write(appKey, v))
	}
	return result.ErrorOrNil()
}

func (r *RegistryRegistrar) write(key string, v registryValue) error {
	var err error
	if v.dword != nil {
		err = r.store.SetDWord(key, v.name, *v.dword)
	} else {
		err = r.store.SetString(key, v.name, v.str)
	}
	if err != nil {
		r.log.WithFields(logrus.Fields{"key": key, "value": v.name}).WithError(err).Warn("registry write failed")
		return fmt.Errorf("%s\\%s: %w", key, v.name, err)
	}
	return nil
}

// Unregister 删除 Uninstall 键和应用键；键不存在视为已清理。
func (r *RegistryRegistrar) Unregister(productName string) error {
	var result *multierror.Error
	for _, key := range []string{UninstallKeyPath(productName), AppKeyPath(productName)} {
		err := r.store.DeleteKey(key)
		switch {
		case err == nil:
			r.log.WithField("key", key).Info("registry key removed")
		case errors.Is(err, ErrKeyNotFound):
			r.log.WithField("key", key).Info("registry key already absent")
		default:
			result = multierror.Append(result, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return result.ErrorOrNil()
}

// InstalledLocation 读取上次安装写入的目录：先看应用键 InstallDir，再看 Uninstall 键 InstallLocation。
// 目录必须是绝对路径且以产品名结尾，否则不采用，避免注册表被改写后删错目录。
func (r *RegistryRegistrar) InstalledLocation(productName string) (string, error) {
	if productName == "" {
		return "", fmt.Errorf("empty product name")
	}
	var result *multierror.Error
	for _, lookup := range []struct{ key, name string }{
		{AppKeyPath(productName), "InstallDir"},
		{UninstallKeyPath(productName), "InstallLocation"},
	} {
		dir, err := r.store.GetString(lookup.key, lookup.name)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s\\%s: %w", lookup.key, lookup.name, err))
			continue
		}
		if !filepath.IsAbs(dir) || !strings.EqualFold(filepath.Base(dir), productName) {
			r.log.WithFields(logrus.Fields{"key": lookup.key, "dir": dir}).Warn("registered install dir ignored")
			result = multierror.Append(result, fmt.Errorf("%s\\%s: unexpected location %q", lookup.key, lookup.name, dir))
			continue
		}
		return filepath.Clean(dir), nil
	}
	return "", result.ErrorOrNil()
}
