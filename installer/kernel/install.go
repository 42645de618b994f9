package kernel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// UninstallerName 安装时复制到目标目录的卸载程序文件名。
const UninstallerName = "uninstall.exe"

// ProductInfo 产品元数据，来自配置或安装包内的 meta.yaml。
// 快捷方式显示名由 ShortcutProvisioner 持有，不在这里重复。
type ProductInfo struct {
	ProductName string
	ExeName     string
	Version     string
	Publisher   string
}

type InstallOptions struct {
	Product    ProductInfo
	SourceRoot string
	Target     InstallationTarget
	// UninstallerSource 复制为 <target>/uninstall.exe 的文件（通常是当前 setup 自身），为空则跳过。
	UninstallerSource     string
	CreateDesktopShortcut bool
	OnProgress            ProgressFunc
}

type InstallReport struct {
	Target   InstallationTarget
	Files    int
	ExePath  string
	Warnings []Warning
}

type Installer struct {
	Guard     *RunningInstanceGuard
	Deployer  *FileDeployer
	Registrar *RegistryRegistrar
	Shortcuts *ShortcutProvisioner
	Log       logrus.FieldLogger
}

// Install 结束旧进程 → 枚举源文件 → 复制 → 写注册表 → 创建快捷方式。
// 源缺失、目录无法创建、复制失败是致命错误；注册表和快捷方式失败只是警告。
func (in *Installer) Install(ctx context.Context, opts InstallOptions) (InstallReport, error) {
	report := InstallReport{Target: opts.Target}
	diag := newDiagnostics(in.Log)
	p := opts.Product

	if err := in.Guard.EnsureStopped(ctx, p.ExeName); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, fatal("stop running instance", ctxErr)
		}
		diag.degrade("stop running instance", err)
	}

	manifest, err := Walk(opts.SourceRoot)
	if err != nil {
		return report, fatal("read source", err)
	}
	in.Log.WithField("files", len(manifest)).Info("manifest built")

	if err := in.Deployer.Deploy(ctx, manifest, opts.Target, opts.OnProgress); err != nil {
		return report, err
	}
	report.Files = len(manifest)

	uninstallExe := filepath.Join(opts.Target.RootPath, UninstallerName)
	if opts.UninstallerSource != "" {
		diag.degrade("create uninstaller", copyFile(opts.UninstallerSource, uninstallExe))
	}

	exePath := filepath.Join(opts.Target.RootPath, p.ExeName)
	if _, err := os.Stat(exePath); err != nil {
		if detected := detectAnyExe(opts.Target.RootPath); detected != "" {
			in.Log.WithField("exe", detected).Warn("main executable not found, using detected one")
			exePath = detected
		} else {
			exePath = ""
		}
	}
	report.ExePath = exePath

	uninstallString := fmt.Sprintf("\"%s\" --uninstall", uninstallExe)
	set := RegistryEntrySet{
		DisplayName:          p.ProductName,
		DisplayIcon:          exePath,
		UninstallString:      uninstallString,
		QuietUninstallString: uninstallString + " /S",
		DisplayVersion:       p.Version,
		Publisher:            p.Publisher,
		InstallLocation:      opts.Target.RootPath,
		NoModify:             true,
		NoRepair:             true,
	}
	if exePath != "" {
		set.DisplayIcon = exePath + ",0"
	}
	diag.degrade("write registry", in.Registrar.Register(p.ProductName, set, AppKeyValues{
		InstallDir: opts.Target.RootPath,
		ExePath:    exePath,
		Version:    p.Version,
	}))

	if exePath == "" {
		diag.degrade("create shortcuts", errors.New("no executable found, shortcuts skipped"))
	} else {
		diag.degrade("create shortcuts", in.Shortcuts.Create(exePath, opts.Target.RootPath, opts.CreateDesktopShortcut))
	}

	report.Warnings = diag.warnings
	in.Log.WithFields(logrus.Fields{
		"target":   opts.Target.RootPath,
		"files":    report.Files,
		"warnings": len(report.Warnings),
	}).Info("install complete")
	return report, nil
}
