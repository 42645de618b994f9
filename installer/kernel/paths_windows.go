//go:build windows

package kernel

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

const shortcutExt = ".lnk"

// LocalAppDataDir 优先使用 Known Folder API，失败时回退到 LOCALAPPDATA 环境变量。
func LocalAppDataDir() (string, error) {
	if p, err := windows.KnownFolderPath(windows.FOLDERID_LocalAppData, 0); err == nil && p != "" {
		return p, nil
	}
	if p := os.Getenv("LOCALAPPDATA"); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("LOCALAPPDATA env empty")
}

// UserFolders 当前用户的桌面与开始菜单 Programs 目录。
func UserFolders() (SpecialFolders, error) {
	var f SpecialFolders
	if p, err := windows.KnownFolderPath(windows.FOLDERID_Desktop, 0); err == nil && p != "" {
		f.Desktop = p
	} else {
		home, err := homeDir()
		if err != nil {
			return f, err
		}
		f.Desktop = filepath.Join(home, "Desktop")
	}
	if p, err := windows.KnownFolderPath(windows.FOLDERID_Programs, 0); err == nil && p != "" {
		f.Programs = p
	} else {
		appData := os.Getenv("AppData")
		if appData == "" {
			return f, fmt.Errorf("AppData env empty")
		}
		f.Programs = filepath.Join(appData, "Microsoft", "Windows", "Start Menu", "Programs")
	}
	return f, nil
}
