//go:build !windows

package kernel

import (
	"fmt"
	"os"
	"strings"
)

// desktopEntryLinker 写 freedesktop .desktop 启动项。
type desktopEntryLinker struct{}

func NewLinker() Linker { return desktopEntryLinker{} }

func (desktopEntryLinker) CreateLink(d ShortcutDescriptor) error {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", d.DisplayName)
	fmt.Fprintf(&b, "Exec=%q\n", d.TargetExecutable)
	fmt.Fprintf(&b, "Path=%s\n", d.WorkingDirectory)
	if d.IconReference != "" {
		fmt.Fprintf(&b, "Icon=%s\n", d.IconReference)
	}
	b.WriteString("Terminal=false\n")
	return os.WriteFile(d.DestinationPath, []byte(b.String()), 0o755)
}
