package kernel

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	// ErrSourceMissing 安装源目录不存在，没有可安装的内容。
	ErrSourceMissing = errors.New("source package missing")
	// ErrPathEscape 条目解析后落在安装根目录之外。
	ErrPathEscape = errors.New("path escapes install root")
	// ErrKeyNotFound 注册表键不存在（卸载时视为已清理）。
	ErrKeyNotFound = errors.New("registry key not found")
)

// StepError 致命错误：中断当前流程并直接展示给用户。
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

func fatal(step string, err error) error {
	return &StepError{Step: step, Err: err}
}

// Warning 非致命问题：记录日志，流程继续，整体仍报告成功。
type Warning struct {
	Step string
	Err  error
}

func (w Warning) String() string { return fmt.Sprintf("%s: %v", w.Step, w.Err) }

// diagnostics 汇总一次运行中的降级问题。致命/降级的判定只在这里和 fatal() 中做。
type diagnostics struct {
	log      logrus.FieldLogger
	warnings []Warning
}

func newDiagnostics(log logrus.FieldLogger) *diagnostics {
	return &diagnostics{log: log}
}

func (d *diagnostics) degrade(step string, err error) {
	if err == nil {
		return
	}
	d.log.WithField("step", step).WithError(err).Warn("step degraded, continuing")
	d.warnings = append(d.warnings, Warning{Step: step, Err: err})
}
