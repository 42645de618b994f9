package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InstallationTarget 一次运行的安装目标。按值传递，部署开始后不再修改。
type InstallationTarget struct {
	RootPath string
}

// Resolve 把相对路径解析到安装根目录下，拒绝任何逃逸出根目录的路径。
func (t InstallationTarget) Resolve(rel string) (string, error) {
	if t.RootPath == "" {
		return "", fmt.Errorf("empty install root")
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return filepath.Join(t.RootPath, clean), nil
}

// Contains 判断 path 是否位于安装根目录之内（含根目录本身）。
func (t InstallationTarget) Contains(path string) bool {
	rel, err := filepath.Rel(t.RootPath, path)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

// PathResolver 计算默认或用户选择的安装目录。
type PathResolver struct {
	productName string
	appDataRoot string
	custom      string
}

// NewPathResolver appDataRoot 为空时使用当前用户的本地应用数据目录。
func NewPathResolver(productName, appDataRoot string) (*PathResolver, error) {
	if strings.TrimSpace(productName) == "" {
		return nil, fmt.Errorf("empty product name")
	}
	if appDataRoot == "" {
		root, err := LocalAppDataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve local app data: %w", err)
		}
		appDataRoot = root
	}
	return &PathResolver{productName: productName, appDataRoot: appDataRoot}, nil
}

// Default 返回 <LocalAppData>/<ProductName>。
func (r *PathResolver) Default() string {
	return filepath.Join(r.appDataRoot, r.productName)
}

// SetCustom 返回 <basePath>/<ProductName>，并作为本次运行的目标目录。
func (r *PathResolver) SetCustom(basePath string) string {
	r.custom = filepath.Join(filepath.Clean(basePath), r.productName)
	return r.custom
}

// Target 当前生效的安装目标。
func (r *PathResolver) Target() InstallationTarget {
	if r.custom != "" {
		return InstallationTarget{RootPath: r.custom}
	}
	return InstallationTarget{RootPath: r.Default()}
}

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", fmt.Errorf("user home dir unavailable: %v", err)
	}
	return home, nil
}
