package kernel

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// DefaultGracePeriod 结束进程后等待系统释放文件句柄的时间。
const DefaultGracePeriod = 1500 * time.Millisecond

// ProcessKiller 按可执行文件名结束进程（连同子进程），返回匹配到的进程数。
type ProcessKiller interface {
	KillByName(ctx context.Context, name string) (int, error)
}

// RunningInstanceGuard 覆盖文件前结束正在运行的旧版本，避免文件被占用。
type RunningInstanceGuard struct {
	killer ProcessKiller
	grace  time.Duration
	log    logrus.FieldLogger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRunningInstanceGuard(killer ProcessKiller, grace time.Duration, log logrus.FieldLogger) *RunningInstanceGuard {
	if killer == nil {
		killer = NewProcessKiller()
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &RunningInstanceGuard{killer: killer, grace: grace, log: log, sleep: sleepCtx}
}

// EnsureStopped 结束所有名为 processName 的进程并等待固定的宽限期。
// 没有匹配进程不是错误；结束失败只返回给调用方做降级处理，后续复制会暴露真正的占用问题。
func (g *RunningInstanceGuard) EnsureStopped(ctx context.Context, processName string) error {
	log := g.log.WithField("process", processName)
	n, err := g.killer.KillByName(ctx, processName)
	if n == 0 && err == nil {
		log.Info("no running instance")
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("terminate running instance failed")
	} else {
		log.WithField("count", n).Info("terminated running instance")
	}
	if serr := g.sleep(ctx, g.grace); serr != nil {
		return serr
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// psKiller 基于 gopsutil 的实现，跨平台枚举进程并按进程树强制结束。
type psKiller struct {
	self int32
}

func NewProcessKiller() ProcessKiller {
	return &psKiller{self: int32(os.Getpid())}
}

func (k *psKiller) KillByName(ctx context.Context, name string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	var (
		matched int
		errs    []error
	)
	for _, p := range procs {
		if p.Pid == k.self {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil || !strings.EqualFold(pname, name) {
			continue
		}
		matched++
		if err := k.killTree(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return matched, errors.Join(errs...)
}

// killTree 先结束子进程，再结束自身（等价于 taskkill /F /T）。
func (k *psKiller) killTree(ctx context.Context, p *process.Process) error {
	children, err := p.ChildrenWithContext(ctx)
	if err == nil {
		for _, c := range children {
			if c.Pid == k.self {
				continue
			}
			_ = k.killTree(ctx, c)
		}
	}
	if err := p.KillWithContext(ctx); err != nil {
		if ok, _ := p.IsRunningWithContext(ctx); !ok {
			return nil
		}
		return err
	}
	return nil
}
