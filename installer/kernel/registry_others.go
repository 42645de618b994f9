//go:build !windows

package kernel

import (
	"path/filepath"
)

// NewKeyStore 非 Windows 平台没有注册表，用用户配置目录下的 YAML 文件保存同样的键值。
func NewKeyStore() (KeyStore, error) {
	home, err := homeDir()
	if err != nil {
		return nil, err
	}
	return NewFileKeyStore(filepath.Join(home, ".config", "webapp-installer", "registry.yaml")), nil
}
