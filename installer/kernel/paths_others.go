//go:build !windows

package kernel

import (
	"os"
	"path/filepath"
)

const shortcutExt = ".desktop"

// LocalAppDataDir 非 Windows 平台使用 XDG_DATA_HOME（默认 ~/.local/share）。
func LocalAppDataDir() (string, error) {
	if p := os.Getenv("XDG_DATA_HOME"); p != "" {
		return p, nil
	}
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

// UserFolders 桌面目录与 applications 目录（freedesktop 约定）。
func UserFolders() (SpecialFolders, error) {
	home, err := homeDir()
	if err != nil {
		return SpecialFolders{}, err
	}
	desktop := os.Getenv("XDG_DESKTOP_DIR")
	if desktop == "" {
		desktop = filepath.Join(home, "Desktop")
	}
	data, err := LocalAppDataDir()
	if err != nil {
		return SpecialFolders{}, err
	}
	return SpecialFolders{
		Desktop:  desktop,
		Programs: filepath.Join(data, "applications"),
	}, nil
}
