package kernel

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// DeploymentProgress 每复制完一个文件发出一次。
type DeploymentProgress struct {
	FilesCopied         int    `json:"filesCopied"`
	TotalFiles          int    `json:"totalFiles"`
	CurrentRelativePath string `json:"currentRelativePath"`
}

// Percent round(filesCopied/totalFiles*100)
func (p DeploymentProgress) Percent() int {
	return percent(p.FilesCopied, p.TotalFiles)
}

// UninstallProgress 卸载时每处理一个文件发出一次。
type UninstallProgress struct {
	Percent         int    `json:"percent"`
	CurrentFileName string `json:"currentFileName"`
}

type ProgressFunc func(DeploymentProgress)

type UninstallProgressFunc func(UninstallProgress)

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// FileDeployer 顺序复制文件；不做并行复制，保证进度严格单调。
type FileDeployer struct {
	log logrus.FieldLogger
}

func NewFileDeployer(log logrus.FieldLogger) *FileDeployer {
	return &FileDeployer{log: log}
}

// Deploy 把 manifest 中的文件全部复制到 target，任何一个文件失败都会中止整个部署。
func (d *FileDeployer) Deploy(ctx context.Context, manifest []FileManifestEntry, target InstallationTarget, onProgress ProgressFunc) error {
	if err := os.MkdirAll(target.RootPath, 0o755); err != nil {
		return fatal("create install dir", err)
	}
	total := len(manifest)
	for i, e := range manifest {
		if err := ctx.Err(); err != nil {
			return fatal("deploy", err)
		}
		dest, err := target.Resolve(e.RelativePath)
		if err != nil {
			return fatal("deploy", err)
		}
		if err := copyFile(e.SourcePath, dest); err != nil {
			return fatal("copy "+e.RelativePath, err)
		}
		d.log.WithField("file", e.RelativePath).Debug("copied")
		if onProgress != nil {
			onProgress(DeploymentProgress{
				FilesCopied:         i + 1,
				TotalFiles:          total,
				CurrentRelativePath: e.RelativePath,
			})
		}
	}
	d.log.WithField("files", total).Info("deployment complete")
	return nil
}

// copyFile 复制文件内容到新路径（覆盖写），并确保父目录存在。
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open src: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat src: %w", err)
	}
	mode := info.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir dst dir: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create dst: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}

// RemovalResult 卸载删除文件的结果。单个文件删除失败不会中断，只计数。
type RemovalResult struct {
	Deleted   int
	Failed    int
	Remaining []string // 校验扫描后仍存在的文件（不含被排除的可执行文件）
	errs      *multierror.Error
}

// Err 汇总全部删除失败；全部成功时为 nil。
func (r RemovalResult) Err() error {
	return r.errs.ErrorOrNil()
}

// Remove 删除安装目录下除 exclude 以外的全部文件，然后清理空目录并做一次校验扫描。
// 目录不存在视为已清理。
func (d *FileDeployer) Remove(ctx context.Context, target InstallationTarget, exclude string, onProgress UninstallProgressFunc) (RemovalResult, error) {
	var res RemovalResult
	files, dirs, err := listTree(target.RootPath)
	if os.IsNotExist(err) {
		d.log.WithField("dir", target.RootPath).Info("install dir already gone")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("list install dir: %w", err)
	}

	total := len(files)
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name, _ := filepath.Rel(target.RootPath, f)
		if !samePath(f, exclude) {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				res.Failed++
				res.errs = multierror.Append(res.errs, err)
				d.log.WithField("file", name).WithError(err).Warn("delete failed")
			} else {
				res.Deleted++
			}
		}
		if onProgress != nil {
			onProgress(UninstallProgress{Percent: percent(i+1, total), CurrentFileName: name})
		}
	}

	// 由深到浅删除空目录；非空目录（含被排除的 exe）会失败，忽略即可。
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		_ = os.Remove(dir)
	}
	_ = os.Remove(target.RootPath)

	remaining, _, err := listTree(target.RootPath)
	if err == nil {
		for _, f := range remaining {
			if !samePath(f, exclude) {
				res.Remaining = append(res.Remaining, f)
			}
		}
	}
	d.log.WithFields(logrus.Fields{
		"deleted":   res.Deleted,
		"failed":    res.Failed,
		"remaining": len(res.Remaining),
	}).Info("file removal complete")
	return res, nil
}

// listTree 返回 root 下的所有文件和子目录（不含 root 本身）。
func listTree(root string) (files, dirs []string, err error) {
	if _, err := os.Lstat(root); err != nil {
		return nil, nil, err
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// 单个子目录不可读不影响其它部分
			if p == root {
				return err
			}
			return nil
		}
		if p == root {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}
		files = append(files, p)
		return nil
	})
	return files, dirs, err
}

// samePath Windows 下路径比较不区分大小写。
func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
