// Package installer is the command surface the UI layer drives: install path
// selection, install/uninstall runs with progress events, launching the installed
// application and closing the installer.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"webapp_installer/installer/config"
	"webapp_installer/installer/kernel"
)

// Event names emitted during a run.
const (
	EventInstallProgress   = "install-progress"
	EventUninstallProgress = "uninstall-progress"
)

// Emitter receives progress events; data is kernel.DeploymentProgress or kernel.UninstallProgress.
type Emitter func(event string, data any)

// DirectoryPicker 原生目录选择对话框（或控制台输入），不属于核心逻辑。
type DirectoryPicker interface {
	PickDirectory(parent uintptr, initial string) (string, error)
}

// ErrCanceled the user dismissed the directory picker.
var ErrCanceled = errors.New("canceled")

// Result is what every run returns to the UI. Error is set only when Success is false.
type Result struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type InstallRequest struct {
	CreateDesktopShortcut bool `json:"createDesktopShortcut"`
}

// Options 构造 Service 所需的依赖；零值字段使用当前用户/当前系统的实现。
type Options struct {
	Config     *config.Config
	SourceRoot string
	// ExecutablePath 当前运行的 setup/uninstall 程序，默认 os.Executable()。
	ExecutablePath string
	Uninstall      bool
	Log            logrus.FieldLogger
	Emit           Emitter
	Picker         DirectoryPicker

	KeyStore    kernel.KeyStore
	Folders     *kernel.SpecialFolders
	Linker      kernel.Linker
	Killer      kernel.ProcessKiller
	AppDataRoot string
	TempDir     string
	Exit        func(code int)
}

type Service struct {
	cfg           *config.Config
	sourceRoot    string
	exe           string
	uninstallMode bool
	log           logrus.FieldLogger
	emit          Emitter
	picker        DirectoryPicker
	exit          func(code int)

	paths       *kernel.PathResolver
	installer   *kernel.Installer
	uninstaller *kernel.Uninstaller

	launch   func(task *kernel.SelfDeletionTask) error
	startApp func(exe, dir string) error

	installedExe string
	task         *kernel.SelfDeletionTask
}

func New(opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Normalize(&config.Config{}); err != nil {
			return nil, err
		}
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	exe := opts.ExecutablePath
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		exe = self
	}

	paths, err := kernel.NewPathResolver(cfg.Product.Name, opts.AppDataRoot)
	if err != nil {
		return nil, err
	}
	if cfg.Install.Dir != "" {
		paths.SetCustom(cfg.Install.Dir)
	}

	store := opts.KeyStore
	if store == nil {
		if store, err = kernel.NewKeyStore(); err != nil {
			return nil, fmt.Errorf("open key store: %w", err)
		}
	}
	var folders kernel.SpecialFolders
	if opts.Folders != nil {
		folders = *opts.Folders
	} else if folders, err = kernel.UserFolders(); err != nil {
		return nil, fmt.Errorf("resolve user folders: %w", err)
	}
	killer := opts.Killer
	if killer == nil {
		killer = kernel.NewProcessKiller()
	}

	deployer := kernel.NewFileDeployer(log)
	registrar := kernel.NewRegistryRegistrar(store, log)
	shortcuts := kernel.NewShortcutProvisioner(cfg.Product.Name, cfg.Product.ShortcutName, folders, opts.Linker, log)
	scheduler := kernel.NewSelfDeletionScheduler(opts.TempDir, cfg.Uninstall.PollInterval, cfg.Uninstall.MaxAttempts, log)

	s := &Service{
		cfg:           cfg,
		sourceRoot:    opts.SourceRoot,
		exe:           exe,
		uninstallMode: UninstallRequested(exe, opts.Uninstall),
		log:           log,
		emit:          opts.Emit,
		picker:        opts.Picker,
		exit:          opts.Exit,
		paths:         paths,
		installer: &kernel.Installer{
			Guard:     kernel.NewRunningInstanceGuard(killer, cfg.Install.GracePeriod, log),
			Deployer:  deployer,
			Registrar: registrar,
			Shortcuts: shortcuts,
			Log:       log,
		},
		uninstaller: &kernel.Uninstaller{
			Shortcuts: shortcuts,
			Registrar: registrar,
			Deployer:  deployer,
			Scheduler: scheduler,
			Log:       log,
		},
		launch:   scheduler.Launch,
		startApp: startDetached,
	}
	if s.sourceRoot == "" {
		s.sourceRoot = cfg.Install.SourceDir
	}
	if s.emit == nil {
		s.emit = func(string, any) {}
	}
	if s.exit == nil {
		s.exit = os.Exit
	}
	return s, nil
}

// UninstallRequested 带 --uninstall 参数，或可执行文件名包含 "uninstall"。
func UninstallRequested(exePath string, flag bool) bool {
	if flag {
		return true
	}
	name := strings.ToLower(filepath.Base(exePath))
	return strings.Contains(name, "uninstall")
}

func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) IsUninstallMode() bool { return s.uninstallMode }

// GetDefaultInstallPath <LocalAppData>/<ProductName>
func (s *Service) GetDefaultInstallPath() string { return s.paths.Default() }

// InstallPath the target the next install run will use.
func (s *Service) InstallPath() string { return s.paths.Target().RootPath }

// SetInstallDir 使用 <base>/<ProductName> 作为安装目录，返回最终路径。
func (s *Service) SetInstallDir(base string) string { return s.paths.SetCustom(base) }

// ChooseDirectory 弹出目录选择；用户选择的目录下再加产品名。
func (s *Service) ChooseDirectory(parent uintptr) (string, error) {
	if s.picker == nil {
		return "", errors.New("no directory picker available")
	}
	picked, err := s.picker.PickDirectory(parent, filepath.Dir(s.InstallPath()))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(picked) == "" {
		return "", ErrCanceled
	}
	return s.SetInstallDir(picked), nil
}

func (s *Service) product() kernel.ProductInfo {
	p := s.cfg.Product
	return kernel.ProductInfo{
		ProductName: p.Name,
		ExeName:     p.ExeName,
		Version:     p.Version,
		Publisher:   p.Publisher,
	}
}

// StartInstallation 运行完整安装流程，期间发出 install-progress 事件。
func (s *Service) StartInstallation(ctx context.Context, req InstallRequest) Result {
	if s.sourceRoot == "" {
		return failure(fmt.Errorf("read source: %w", kernel.ErrSourceMissing))
	}
	target := s.paths.Target()
	s.log.WithFields(logrus.Fields{"target": target.RootPath, "source": s.sourceRoot}).Info("installation started")

	report, err := s.installer.Install(ctx, kernel.InstallOptions{
		Product:               s.product(),
		SourceRoot:            s.sourceRoot,
		Target:                target,
		UninstallerSource:     s.exe,
		CreateDesktopShortcut: req.CreateDesktopShortcut,
		OnProgress: func(p kernel.DeploymentProgress) {
			s.emit(EventInstallProgress, p)
		},
	})
	if err != nil {
		s.log.WithError(err).Error("installation failed")
		return failure(err)
	}
	s.installedExe = report.ExePath
	return success(report.Warnings)
}

// StartUninstallation 卸载永远返回成功；各步骤失败以警告形式返回。
func (s *Service) StartUninstallation(ctx context.Context) Result {
	target := s.uninstallTarget()
	s.log.WithFields(logrus.Fields{"target": target.RootPath, "exe": s.exe}).Info("uninstallation started")

	report := s.uninstaller.Run(ctx, kernel.UninstallOptions{
		ProductName:    s.cfg.Product.Name,
		Target:         target,
		ExecutablePath: s.exe,
		OnProgress: func(p kernel.UninstallProgress) {
			s.emit(EventUninstallProgress, p)
		},
	})
	s.task = report.Task

	res := success(report.Warnings)
	for _, f := range report.Removal.Remaining {
		res.Warnings = append(res.Warnings, "file not removed: "+f)
	}
	if report.ManualDeletion {
		res.Warnings = append(res.Warnings, fmt.Sprintf("manual deletion required: %s", s.exe))
	}
	return res
}

// uninstallTarget 作为 uninstall.exe 运行时，目标目录就是其所在目录；
// 否则使用注册表记录的安装目录，都没有时才用默认目录。
func (s *Service) uninstallTarget() kernel.InstallationTarget {
	if strings.EqualFold(filepath.Base(s.exe), kernel.UninstallerName) {
		return kernel.InstallationTarget{RootPath: filepath.Dir(s.exe)}
	}
	if s.cfg.Install.Dir == "" {
		dir, err := s.uninstaller.Registrar.InstalledLocation(s.cfg.Product.Name)
		if err == nil {
			return kernel.InstallationTarget{RootPath: dir}
		}
		s.log.WithError(err).Debug("no registered install dir")
	}
	return s.paths.Target()
}

// LaunchInstalledApp 启动已安装的主程序（不等待），随后退出安装程序。
func (s *Service) LaunchInstalledApp() error {
	if s.installedExe == "" {
		return errors.New("no installed executable to launch")
	}
	if err := s.startApp(s.installedExe, filepath.Dir(s.installedExe)); err != nil {
		s.log.WithError(err).Error("launch installed app failed")
		return fmt.Errorf("launch %s: %w", filepath.Base(s.installedExe), err)
	}
	s.log.WithField("exe", s.installedExe).Info("installed app launched")
	s.exit(0)
	return nil
}

// CloseInstaller 若已计划自删除，先启动清理脚本再退出。
// 清理脚本启动失败时不退出，返回错误让界面提示用户手动删除。
func (s *Service) CloseInstaller() error {
	if s.task != nil {
		if err := s.launch(s.task); err != nil {
			s.log.WithError(err).Warn("manual deletion required")
			return fmt.Errorf("manual deletion required: %s: %w", s.task.ExecutablePath, err)
		}
	}
	s.exit(0)
	return nil
}

func startDetached(exe, dir string) error {
	cmd := exec.Command(exe)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func success(warnings []kernel.Warning) Result {
	res := Result{Success: true}
	for _, w := range warnings {
		res.Warnings = append(res.Warnings, w.String())
	}
	return res
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
