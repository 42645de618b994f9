package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"webapp_installer/installer"
	"webapp_installer/installer/config"
	"webapp_installer/installer/logging"
	"webapp_installer/installer/payload"
)

type stubOptions struct {
	uninstall  bool
	dir        string
	desktop    bool
	desktopSet bool
	configPath string
	source     string
	launch     bool
	quiet      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o stubOptions
	cmd := &cobra.Command{
		Use:           "setup",
		Short:         "Install or uninstall the bundled application",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.desktopSet = cmd.Flags().Changed("desktop-shortcut")
			o.quiet = o.quiet || hasQuietArg(args)
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			return run(cmd.Context(), exe, o, newConsole())
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.uninstall, "uninstall", false, "run in uninstall mode")
	f.StringVar(&o.dir, "dir", "", "base directory; the product name is appended")
	f.BoolVar(&o.desktop, "desktop-shortcut", true, "create a desktop shortcut")
	f.StringVar(&o.configPath, "config", "", "installer.yaml overriding the embedded metadata")
	f.StringVar(&o.source, "source", "", "install from this directory instead of the embedded payload")
	f.BoolVar(&o.launch, "launch", false, "start the application after a successful install")
	f.BoolVarP(&o.quiet, "yes", "y", false, "do not prompt")
	return cmd
}

// hasQuietArg QuietUninstallString 以 /S 结尾。
func hasQuietArg(args []string) bool {
	for _, a := range args {
		if strings.EqualFold(a, "/S") {
			return true
		}
	}
	return false
}

func run(ctx context.Context, exe string, o stubOptions, c *console) error {
	uninstall := installer.UninstallRequested(exe, o.uninstall)

	cfg, source, cleanup, err := prepare(exe, o, uninstall, c)
	if err != nil {
		c.printf("无法准备安装内容: %v\n", err)
		c.pause(o.quiet)
		return err
	}
	defer cleanup()

	log, closer, err := logging.New(cfg.Log.Dir, cfg.Product.Name, cfg.Log.Level)
	if err != nil {
		// 日志只是诊断用途，失败不影响安装
		c.printf("无法打开日志文件（忽略）：%v\n", err)
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	} else {
		defer closer.Close()
	}

	// 不在 Service 内部退出：run 返回后 defer 中的清理（临时解压目录、日志）才会执行
	svc, err := installer.New(installer.Options{
		Config:         cfg,
		SourceRoot:     source,
		ExecutablePath: exe,
		Uninstall:      uninstall,
		Log:            log,
		Emit:           c.onEvent,
		Picker:         consolePicker{c: c},
		Exit:           func(int) {},
	})
	if err != nil {
		c.printf("初始化失败: %v\n", err)
		c.pause(o.quiet)
		return err
	}

	if svc.IsUninstallMode() {
		return runUninstall(ctx, svc, o, c)
	}
	return runInstall(ctx, svc, o, c)
}

// prepare 返回配置、安装源目录和清理函数。安装模式下默认解压自身携带的归档。
func prepare(exe string, o stubOptions, uninstall bool, c *console) (*config.Config, string, func(), error) {
	noop := func() {}
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		return cfg, o.source, noop, err
	}

	if uninstall {
		meta, err := payload.ReadMeta(exe)
		if err == nil {
			cfg, err := config.ParseMeta(meta)
			return cfg, "", noop, err
		}
		// 没有内置元数据：从所在目录名推断产品名
		cfg, err := config.Normalize(&config.Config{Product: config.Product{Name: filepath.Base(filepath.Dir(exe))}})
		return cfg, "", noop, err
	}

	if o.source != "" {
		cfg, err := config.Normalize(&config.Config{})
		return cfg, o.source, noop, err
	}

	c.println("正在解压安装内容，请稍候...")
	tmp, err := os.MkdirTemp("", "setup-")
	if err != nil {
		return nil, "", noop, err
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }
	root, meta, err := payload.Extract(exe, tmp)
	if err != nil {
		cleanup()
		return nil, "", noop, err
	}
	var cfg *config.Config
	if len(meta) > 0 {
		cfg, err = config.ParseMeta(meta)
	} else {
		cfg, err = config.Normalize(&config.Config{})
	}
	if err != nil {
		cleanup()
		return nil, "", noop, err
	}
	return cfg, root, cleanup, nil
}

func runInstall(ctx context.Context, svc *installer.Service, o stubOptions, c *console) error {
	p := svc.Config().Product
	c.printf("产品: %s  版本: %s\n", p.Name, p.Version)

	switch {
	case o.dir != "":
		svc.SetInstallDir(o.dir)
	case !o.quiet:
		c.printf("默认安装目录: %s\n", svc.GetDefaultInstallPath())
		if _, err := svc.ChooseDirectory(0); err != nil && !errors.Is(err, installer.ErrCanceled) {
			c.printf("读取目录失败，使用默认目录：%v\n", err)
		}
	}
	c.printf("目标安装目录: %s\n", svc.InstallPath())

	desktop := svc.Config().Install.DesktopShortcut()
	if o.desktopSet {
		desktop = o.desktop
	}

	c.println("开始安装...")
	res := svc.StartInstallation(ctx, installer.InstallRequest{CreateDesktopShortcut: desktop})
	if !res.Success {
		c.printf("安装失败: %s\n", res.Error)
		c.pause(o.quiet)
		return errors.New(res.Error)
	}
	c.warnings(res.Warnings)
	c.printf("已安装到: %s\n", svc.InstallPath())
	c.println("安装完成，祝您使用愉快！")

	if o.launch || (!o.quiet && c.confirm(fmt.Sprintf("是否立即启动 %s？", p.Name))) {
		if err := svc.LaunchInstalledApp(); err != nil {
			c.printf("启动失败: %v\n", err)
			c.pause(o.quiet)
		}
	}
	return svc.CloseInstaller()
}

func runUninstall(ctx context.Context, svc *installer.Service, o stubOptions, c *console) error {
	name := svc.Config().Product.Name
	if !o.quiet && !c.confirm(fmt.Sprintf("确定要卸载 %s 吗？", name)) {
		c.println("已取消卸载。")
		return nil
	}

	c.println("正在卸载...")
	res := svc.StartUninstallation(ctx)
	c.warnings(res.Warnings)
	c.printf("%s 已卸载。\n", name)
	c.pause(o.quiet)
	// 退出前启动清理脚本删除 uninstall.exe
	if err := svc.CloseInstaller(); err != nil {
		c.printf("无法自动删除卸载程序，请手动删除: %v\n", err)
		c.pause(o.quiet)
		return err
	}
	return nil
}
