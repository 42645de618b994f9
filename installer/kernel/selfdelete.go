package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aymerick/raymond"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 120
)

// SelfDeletionTask 正在运行的可执行文件无法自删除，交给一个独立的清理脚本在本进程退出后完成。
type SelfDeletionTask struct {
	ExecutablePath    string
	CleanupScriptPath string
}

// SelfDeletionScheduler 生成清理脚本（Schedule）与启动脚本（Launch）分两步，
// 以便卸载结果先展示给用户，退出时才真正启动。
type SelfDeletionScheduler struct {
	TempDir      string
	PollInterval time.Duration
	MaxAttempts  int
	log          logrus.FieldLogger
	start        func(script string) error
}

func NewSelfDeletionScheduler(tempDir string, poll time.Duration, maxAttempts int, log logrus.FieldLogger) *SelfDeletionScheduler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &SelfDeletionScheduler{
		TempDir:      tempDir,
		PollInterval: poll,
		MaxAttempts:  maxAttempts,
		log:          log,
		start:        launchDetached,
	}
}

// Schedule 写出清理脚本：循环尝试删除 exePath，成功后删除（已空的）所在目录，最后删除脚本自身。
func (s *SelfDeletionScheduler) Schedule(exePath string) (*SelfDeletionTask, error) {
	if exePath == "" {
		return nil, fmt.Errorf("empty executable path")
	}
	abs, err := filepath.Abs(exePath)
	if err != nil {
		return nil, err
	}
	script := filepath.Join(s.TempDir, fmt.Sprintf("_uninst_del_%s%s", uuid.NewString()[:8], scriptExt))

	body, err := raymond.Render(cleanupTemplate, scriptContext(abs, filepath.Dir(abs), script, s.PollInterval, s.MaxAttempts))
	if err != nil {
		return nil, fmt.Errorf("render cleanup script: %w", err)
	}
	if err := os.MkdirAll(s.TempDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(script, []byte(body), 0o700); err != nil {
		return nil, fmt.Errorf("write cleanup script: %w", err)
	}
	s.log.WithFields(logrus.Fields{"exe": abs, "script": script}).Info("self deletion scheduled")
	return &SelfDeletionTask{ExecutablePath: abs, CleanupScriptPath: script}, nil
}

// Launch 以脱离父进程的方式启动清理脚本，调用方随后应立即退出。
func (s *SelfDeletionScheduler) Launch(task *SelfDeletionTask) error {
	if task == nil {
		return nil
	}
	if err := s.start(task.CleanupScriptPath); err != nil {
		s.log.WithError(err).Error("cleanup helper spawn failed")
		return fmt.Errorf("spawn cleanup helper: %w", err)
	}
	s.log.WithField("script", task.CleanupScriptPath).Info("cleanup helper launched")
	return nil
}
