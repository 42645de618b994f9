package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// SpecialFolders 系统已知目录。快捷方式路径只由产品名和这两个目录决定。
type SpecialFolders struct {
	Desktop  string
	Programs string
}

// ShortcutDescriptor 一个启动快捷方式。
type ShortcutDescriptor struct {
	TargetExecutable string
	WorkingDirectory string
	DisplayName      string
	IconReference    string
	DestinationPath  string
}

// Linker 在 DestinationPath 写出快捷方式文件。
type Linker interface {
	CreateLink(d ShortcutDescriptor) error
}

var invalidFileChars = regexp.MustCompile(`[\\/:*?"<>|]`)

func sanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	s = invalidFileChars.ReplaceAllString(s, "_")
	// Windows 不允许结尾点或空格
	s = strings.TrimRight(s, ". ")
	if s == "" {
		return "_"
	}
	return s
}

// DesktopShortcutPath <Desktop>/<ProductName>.lnk
func DesktopShortcutPath(productName string, f SpecialFolders) string {
	name := sanitizeFilename(productName)
	return filepath.Join(f.Desktop, name+shortcutExt)
}

// StartMenuDir <Programs>/<ProductName>
func StartMenuDir(productName string, f SpecialFolders) string {
	return filepath.Join(f.Programs, sanitizeFilename(productName))
}

// StartMenuShortcutPath <Programs>/<ProductName>/<ProductName>.lnk
func StartMenuShortcutPath(productName string, f SpecialFolders) string {
	name := sanitizeFilename(productName)
	return filepath.Join(StartMenuDir(productName, f), name+shortcutExt)
}

// ShortcutProvisioner 创建/删除桌面和开始菜单快捷方式。失败只作为可恢复的警告。
type ShortcutProvisioner struct {
	productName string
	displayName string
	folders     SpecialFolders
	linker      Linker
	log         logrus.FieldLogger
}

// NewShortcutProvisioner displayName 为空时使用 productName。
func NewShortcutProvisioner(productName, displayName string, folders SpecialFolders, linker Linker, log logrus.FieldLogger) *ShortcutProvisioner {
	if displayName == "" {
		displayName = productName
	}
	if linker == nil {
		linker = NewLinker()
	}
	return &ShortcutProvisioner{
		productName: productName,
		displayName: displayName,
		folders:     folders,
		linker:      linker,
		log:         log,
	}
}

// Descriptors 开始菜单快捷方式总是创建；桌面快捷方式由 createDesktop 决定。
func (p *ShortcutProvisioner) Descriptors(targetExe, workingDir string, createDesktop bool) []ShortcutDescriptor {
	if workingDir == "" {
		workingDir = filepath.Dir(targetExe)
	}
	base := ShortcutDescriptor{
		TargetExecutable: targetExe,
		WorkingDirectory: workingDir,
		DisplayName:      p.displayName,
		IconReference:    targetExe,
	}
	var out []ShortcutDescriptor
	if createDesktop {
		d := base
		d.DestinationPath = DesktopShortcutPath(p.productName, p.folders)
		out = append(out, d)
	}
	sm := base
	sm.DestinationPath = StartMenuShortcutPath(p.productName, p.folders)
	return append(out, sm)
}

func (p *ShortcutProvisioner) Create(targetExe, workingDir string, createDesktop bool) error {
	if _, err := os.Stat(targetExe); err != nil {
		return fmt.Errorf("target exe missing: %w", err)
	}
	var result *multierror.Error
	for _, d := range p.Descriptors(targetExe, workingDir, createDesktop) {
		if err := os.MkdirAll(filepath.Dir(d.DestinationPath), 0o755); err != nil {
			result = multierror.Append(result, fmt.Errorf("mkdir %s: %w", filepath.Dir(d.DestinationPath), err))
			continue
		}
		if err := p.linker.CreateLink(d); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", d.DestinationPath, err))
			continue
		}
		p.log.WithField("link", d.DestinationPath).Info("shortcut created")
	}
	return result.ErrorOrNil()
}

// Remove 重新计算同样的路径并删除；文件不存在视为已清理。
func (p *ShortcutProvisioner) Remove() error {
	var result *multierror.Error
	for _, link := range []string{
		DesktopShortcutPath(p.productName, p.folders),
		StartMenuShortcutPath(p.productName, p.folders),
	} {
		if err := os.Remove(link); err != nil {
			if !os.IsNotExist(err) {
				result = multierror.Append(result, err)
			}
			continue
		}
		p.log.WithField("link", link).Info("shortcut removed")
	}
	// 只删除空的产品子目录
	if err := os.Remove(StartMenuDir(p.productName, p.folders)); err != nil && !os.IsNotExist(err) {
		p.log.WithError(err).Debug("start menu folder kept")
	}
	return result.ErrorOrNil()
}
