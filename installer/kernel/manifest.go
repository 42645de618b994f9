package kernel

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileManifestEntry 源包中的一个文件。RelativePath 同时用于目标路径和进度显示。
type FileManifestEntry struct {
	SourcePath   string
	RelativePath string
}

// Walk 递归枚举 sourceRoot 下的全部普通文件，目录本身不产生条目。
func Walk(sourceRoot string) ([]FileManifestEntry, error) {
	info, err := os.Stat(sourceRoot)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, sourceRoot)
	}
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceMissing, sourceRoot)
	}
	root, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, err
	}

	var entries []FileManifestEntry
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !isRegularFile(p, d) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("%w: %s", ErrPathEscape, p)
		}
		entries = append(entries, FileManifestEntry{SourcePath: p, RelativePath: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source: %w", err)
	}
	return entries, nil
}

// isRegularFile 普通文件，或指向普通文件的符号链接（复制时读取链接目标）。
// 指向目录的链接不跟随，避免循环。
func isRegularFile(p string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// detectAnyExe 指定的主程序不存在时兜底：先找根目录，再向下找一层。
func detectAnyExe(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && isExe(e.Name()) {
			return filepath.Join(root, e.Name())
		}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(root, e.Name())
		files, _ := os.ReadDir(sub)
		for _, se := range files {
			if !se.IsDir() && isExe(se.Name()) {
				return filepath.Join(sub, se.Name())
			}
		}
	}
	return ""
}

func isExe(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".exe") && lower != UninstallerName
}
