package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"webapp_installer/installer/kernel"
)

const barWidth = 30

// console 控制台界面：终端中用 \r 刷新同一行进度条，重定向时逐行输出。
type console struct {
	out io.Writer
	in  *bufio.Reader
	tty bool
}

func newConsole() *console {
	return &console{
		out: os.Stdout,
		in:  bufio.NewReader(os.Stdin),
		tty: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (c *console) printf(format string, args ...any) { fmt.Fprintf(c.out, format, args...) }

func (c *console) println(s string) { fmt.Fprintln(c.out, s) }

func (c *console) onEvent(_ string, data any) {
	switch p := data.(type) {
	case kernel.DeploymentProgress:
		c.progress(p.Percent(), fmt.Sprintf("[%d/%d] %s", p.FilesCopied, p.TotalFiles, p.CurrentRelativePath))
	case kernel.UninstallProgress:
		c.progress(p.Percent, p.CurrentFileName)
	}
}

func (c *console) progress(percent int, label string) {
	if !c.tty {
		fmt.Fprintf(c.out, "%3d%% %s\n", percent, label)
		return
	}
	filled := percent * barWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	fmt.Fprintf(c.out, "\r[%s] %3d%% %-40s", bar, percent, truncate(label, 40))
	if percent >= 100 {
		fmt.Fprintln(c.out)
	}
}

// truncate 保留末尾部分（文件名比目录更有用）。
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return "..." + string(r[len(r)-n+3:])
}

func (c *console) warnings(ws []string) {
	if len(ws) == 0 {
		return
	}
	c.println("以下步骤未能完成（不影响主要功能）：")
	for _, w := range ws {
		c.printf("  - %s\n", w)
	}
}

func (c *console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *console) confirm(question string) bool {
	c.printf("%s [y/N]: ", question)
	line, err := c.readLine()
	if err != nil {
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes", "是":
		return true
	}
	return false
}

func (c *console) pause(quiet bool) {
	if quiet {
		return
	}
	c.printf("按回车退出...")
	_, _ = c.readLine()
}

// consolePicker 控制台版的目录选择：直接回车表示使用默认目录。
type consolePicker struct{ c *console }

func (p consolePicker) PickDirectory(_ uintptr, initial string) (string, error) {
	p.c.printf("安装位置（回车使用 %s）: ", initial)
	return p.c.readLine()
}
