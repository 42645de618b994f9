//go:build windows

package kernel

import (
	"math"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

const scriptExt = ".bat"

// ping -n N 大约等待 N-1 秒。
const cleanupTemplate = "@echo off\r\n" +
	"set /a n=0\r\n" +
	":again\r\n" +
	"del /f /q \"{{{exe}}}\" >nul 2>&1\r\n" +
	"if not exist \"{{{exe}}}\" goto done\r\n" +
	"set /a n+=1\r\n" +
	"if %n% geq {{attempts}} goto done\r\n" +
	"ping -n {{pings}} 127.0.0.1 >nul\r\n" +
	"goto again\r\n" +
	":done\r\n" +
	"rmdir \"{{{dir}}}\" >nul 2>&1\r\n" +
	"(goto) 2>nul & del /f /q \"%~f0\"\r\n"

func scriptContext(exe, dir, script string, poll time.Duration, attempts int) map[string]any {
	pings := int(math.Ceil(poll.Seconds())) + 1
	if pings < 2 {
		pings = 2
	}
	return map[string]any{
		"exe":      strings.ReplaceAll(exe, "%", "%%"),
		"dir":      strings.ReplaceAll(dir, "%", "%%"),
		"script":   script,
		"attempts": attempts,
		"pings":    pings,
	}
}

func launchDetached(script string) error {
	cmd := exec.Command("cmd.exe", "/C", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
