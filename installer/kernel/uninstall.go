package kernel

import (
	"context"

	"github.com/sirupsen/logrus"
)

// UninstallState 卸载状态机。任一状态失败都只记录，不阻止进入下一状态。
type UninstallState int

const (
	StateIdle UninstallState = iota
	StateRemovingShortcuts
	StateRemovingRegistry
	StateRemovingFiles
	StateSchedulingSelfDeletion
	StateDone
)

func (s UninstallState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRemovingShortcuts:
		return "RemovingShortcuts"
	case StateRemovingRegistry:
		return "RemovingRegistry"
	case StateRemovingFiles:
		return "RemovingFiles"
	case StateSchedulingSelfDeletion:
		return "SchedulingSelfDeletion"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

type UninstallOptions struct {
	ProductName string
	Target      InstallationTarget
	// ExecutablePath 当前正在运行的卸载程序，删除文件时跳过，交给自删除脚本。
	ExecutablePath string
	OnProgress     UninstallProgressFunc
	OnState        func(UninstallState)
}

type UninstallReport struct {
	Removal  RemovalResult
	Task     *SelfDeletionTask
	Warnings []Warning
	// ManualDeletion 清理脚本无法生成，需要用户手动删除可执行文件。
	ManualDeletion bool
}

type Uninstaller struct {
	Shortcuts *ShortcutProvisioner
	Registrar *RegistryRegistrar
	Deployer  *FileDeployer
	Scheduler *SelfDeletionScheduler
	Log       logrus.FieldLogger
}

// Run 依次执行：删除快捷方式 → 删除注册表 → 删除文件 → 计划自删除。
// 卸载必须尽最大可能向前推进，因此没有致命错误。
func (u *Uninstaller) Run(ctx context.Context, opts UninstallOptions) UninstallReport {
	var report UninstallReport
	diag := newDiagnostics(u.Log)
	enter := func(s UninstallState) {
		u.Log.WithField("state", s.String()).Info("uninstall state")
		if opts.OnState != nil {
			opts.OnState(s)
		}
	}

	enter(StateRemovingShortcuts)
	diag.degrade("remove shortcuts", u.Shortcuts.Remove())

	enter(StateRemovingRegistry)
	diag.degrade("remove registry", u.Registrar.Unregister(opts.ProductName))

	enter(StateRemovingFiles)
	removal, err := u.Deployer.Remove(ctx, opts.Target, opts.ExecutablePath, opts.OnProgress)
	report.Removal = removal
	diag.degrade("remove files", err)
	diag.degrade("remove files", removal.Err())

	if opts.ExecutablePath != "" && opts.Target.Contains(opts.ExecutablePath) {
		enter(StateSchedulingSelfDeletion)
		task, err := u.Scheduler.Schedule(opts.ExecutablePath)
		if err != nil {
			report.ManualDeletion = true
		}
		report.Task = task
		diag.degrade("schedule self deletion", err)
	}

	enter(StateDone)
	report.Warnings = diag.warnings
	return report
}
