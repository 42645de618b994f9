//go:build !windows

package kernel

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const scriptExt = ".sh"

const cleanupTemplate = `#!/bin/sh
n=0
while [ -e {{{exe}}} ]; do
  rm -f {{{exe}}} 2>/dev/null
  [ -e {{{exe}}} ] || break
  n=$((n+1))
  [ "$n" -ge {{attempts}} ] && break
  sleep {{interval}}
done
rmdir {{{dir}}} 2>/dev/null
rm -f {{{script}}}
`

func scriptContext(exe, dir, script string, poll time.Duration, attempts int) map[string]any {
	return map[string]any{
		"exe":      shellQuote(exe),
		"dir":      shellQuote(dir),
		"script":   shellQuote(script),
		"attempts": attempts,
		"interval": strconv.FormatFloat(poll.Seconds(), 'f', 3, 64),
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func launchDetached(script string) error {
	cmd := exec.Command("/bin/sh", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
