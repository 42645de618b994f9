//go:build windows

package kernel

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode/utf16"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"golang.org/x/sys/windows"
)

// comLinker 依次尝试 IShellLinkW、WScript.Shell(IDispatch)、临时 VBScript。
type comLinker struct{}

func NewLinker() Linker { return comLinker{} }

func (comLinker) CreateLink(d ShortcutDescriptor) error {
	// COM 套间绑定线程
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		// S_FALSE：本线程已初始化，同样需要配对的 CoUninitialize
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 1 {
			return fmt.Errorf("CoInitializeEx: %w", err)
		}
	}
	defer ole.CoUninitialize()

	// 优先使用底层 ShellLink 接口（完全 Unicode）
	if err := createShellLink(d); err == nil {
		return nil
	}
	if err := createDispatchLink(d); err != nil {
		return fallbackVbsShortcut(d, err)
	}
	return nil
}

func createDispatchLink(d ShortcutDescriptor) error {
	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return fmt.Errorf("CreateObject: %w", err)
	}
	defer unknown.Release()
	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("QI: %w", err)
	}
	defer shell.Release()

	shortcutDisp, err := oleutil.CallMethod(shell, "CreateShortcut", d.DestinationPath)
	if err != nil {
		return fmt.Errorf("CreateShortcut: %w", err)
	}
	shortcut := shortcutDisp.ToIDispatch()
	defer shortcut.Release()

	for _, prop := range []struct {
		name  string
		value any
	}{
		{"TargetPath", d.TargetExecutable},
		{"WorkingDirectory", d.WorkingDirectory},
		{"IconLocation", d.IconReference},
		{"Description", d.DisplayName},
		{"WindowStyle", 1},
	} {
		if _, err := oleutil.PutProperty(shortcut, prop.name, prop.value); err != nil {
			return fmt.Errorf("%s: %w", prop.name, err)
		}
	}
	if _, err := oleutil.CallMethod(shortcut, "Save"); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	// 某些 locale 下 Save 返回成功但文件不存在
	if _, err := os.Stat(d.DestinationPath); err != nil {
		return fmt.Errorf("post-save missing: %w", err)
	}
	return nil
}

// ---------------- Low-level Shell Link (IShellLinkW + IPersistFile) -----------------

var (
	clsidShellLink  = ole.NewGUID("{00021401-0000-0000-C000-000000000046}")
	iidIShellLinkW  = ole.NewGUID("{000214F9-0000-0000-C000-000000000046}")
	iidIPersistFile = ole.NewGUID("{0000010B-0000-0000-C000-000000000046}")
)

const (
	clsctxInprocServer = 0x1
	swShowNormal       = 1
)

type iShellLinkW struct{ lpVtbl *iShellLinkWVtbl }

type iShellLinkWVtbl struct {
	QueryInterface      uintptr
	AddRef              uintptr
	Release             uintptr
	GetPath             uintptr
	GetIDList           uintptr
	SetIDList           uintptr
	GetDescription      uintptr
	SetDescription      uintptr
	GetWorkingDirectory uintptr
	SetWorkingDirectory uintptr
	GetArguments        uintptr
	SetArguments        uintptr
	GetHotkey           uintptr
	SetHotkey           uintptr
	GetShowCmd          uintptr
	SetShowCmd          uintptr
	GetIconLocation     uintptr
	SetIconLocation     uintptr
	SetRelativePath     uintptr
	Resolve             uintptr
	SetPath             uintptr
}

type iPersistFile struct{ lpVtbl *iPersistFileVtbl }

type iPersistFileVtbl struct {
	QueryInterface uintptr
	AddRef         uintptr
	Release        uintptr
	GetClassID     uintptr
	IsDirty        uintptr
	Load           uintptr
	Save           uintptr
	SaveCompleted  uintptr
	GetCurFile     uintptr
}

var (
	ole32                = windows.NewLazySystemDLL("ole32.dll")
	procCoCreateInstance = ole32.NewProc("CoCreateInstance")
)

func failed(hr uintptr) bool { return int32(hr) < 0 }

func createShellLink(d ShortcutDescriptor) error {
	var ppv unsafe.Pointer
	hr, _, _ := syscall.SyscallN(procCoCreateInstance.Addr(),
		uintptr(unsafe.Pointer(clsidShellLink)), 0, uintptr(clsctxInprocServer),
		uintptr(unsafe.Pointer(iidIShellLinkW)), uintptr(unsafe.Pointer(&ppv)))
	if failed(hr) {
		return fmt.Errorf("CoCreateInstance shelllink hr=0x%x", hr)
	}
	sl := (*iShellLinkW)(ppv)
	defer comRelease(unsafe.Pointer(sl))

	if err := callStr(sl, sl.lpVtbl.SetPath, "SetPath", d.TargetExecutable); err != nil {
		return err
	}
	if err := callStr(sl, sl.lpVtbl.SetWorkingDirectory, "SetWorkingDirectory", d.WorkingDirectory); err != nil {
		return err
	}
	// 描述和图标失败不致命
	_ = callStr(sl, sl.lpVtbl.SetDescription, "SetDescription", d.DisplayName)
	if d.IconReference != "" {
		w, _ := windows.UTF16PtrFromString(d.IconReference)
		syscall.SyscallN(sl.lpVtbl.SetIconLocation, uintptr(unsafe.Pointer(sl)), uintptr(unsafe.Pointer(w)), 0)
	}
	if hr, _, _ := syscall.SyscallN(sl.lpVtbl.SetShowCmd, uintptr(unsafe.Pointer(sl)), swShowNormal); failed(hr) {
		return fmt.Errorf("SetShowCmd hr=0x%x", hr)
	}

	var ppvFile unsafe.Pointer
	hr, _, _ = syscall.SyscallN(sl.lpVtbl.QueryInterface,
		uintptr(unsafe.Pointer(sl)), uintptr(unsafe.Pointer(iidIPersistFile)), uintptr(unsafe.Pointer(&ppvFile)))
	if failed(hr) {
		return fmt.Errorf("QueryInterface IPersistFile hr=0x%x", hr)
	}
	persist := (*iPersistFile)(ppvFile)
	defer comRelease(unsafe.Pointer(persist))

	wlink, _ := windows.UTF16PtrFromString(d.DestinationPath)
	hr, _, _ = syscall.SyscallN(persist.lpVtbl.Save,
		uintptr(unsafe.Pointer(persist)), uintptr(unsafe.Pointer(wlink)), 1)
	if failed(hr) {
		return fmt.Errorf("PersistFile.Save hr=0x%x", hr)
	}
	if _, err := os.Stat(d.DestinationPath); err != nil {
		return fmt.Errorf("saved-missing: %v", err)
	}
	return nil
}

func callStr(sl *iShellLinkW, fn uintptr, name, value string) error {
	w, err := windows.UTF16PtrFromString(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	hr, _, _ := syscall.SyscallN(fn, uintptr(unsafe.Pointer(sl)), uintptr(unsafe.Pointer(w)))
	if failed(hr) {
		return fmt.Errorf("%s hr=0x%x", name, hr)
	}
	return nil
}

// comRelease 调用对象 vtable 中的 Release（第 3 个槽位）。
func comRelease(p unsafe.Pointer) {
	if p == nil {
		return
	}
	vtbl := unsafe.Slice(*(**uintptr)(p), 3)
	syscall.SyscallN(vtbl[2], uintptr(p))
}

// fallbackVbsShortcut 使用临时 VBScript（UTF-16 LE BOM）创建快捷方式。
func fallbackVbsShortcut(d ShortcutDescriptor, originalErr error) error {
	if _, err := os.Stat(d.DestinationPath); err == nil {
		return nil
	}
	script := fmt.Sprintf(`Option Explicit
Dim shell, lnk
Set shell = CreateObject("WScript.Shell")
Set lnk = shell.CreateShortcut(%s)
lnk.TargetPath = %s
lnk.WorkingDirectory = %s
lnk.IconLocation = %s
lnk.Description = %s
lnk.WindowStyle = 1
lnk.Save
`, vbsQuote(d.DestinationPath), vbsQuote(d.TargetExecutable), vbsQuote(d.WorkingDirectory), vbsQuote(d.IconReference), vbsQuote(d.DisplayName))

	vbsPath := filepath.Join(os.TempDir(), fmt.Sprintf("shortcut_%d.vbs", time.Now().UnixNano()))
	if err := os.WriteFile(vbsPath, toUTF16LEWithBOM(script), 0o600); err != nil {
		return fmt.Errorf("fallback write: %w; original: %v", err, originalErr)
	}
	defer os.Remove(vbsPath)

	out, err := exec.Command("cscript.exe", "//NoLogo", vbsPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("fallback vbs failed: %v output=%s original=%v", err, strings.TrimSpace(string(out)), originalErr)
	}
	if _, err := os.Stat(d.DestinationPath); err != nil {
		return fmt.Errorf("fallback vbs no link: %v original=%v", err, originalErr)
	}
	return nil
}

// vbsQuote VBScript 字符串中的 " 写作 ""。
func vbsQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func toUTF16LEWithBOM(s string) []byte {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 0, 2+len(units)*2)
	buf = append(buf, 0xFF, 0xFE)
	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}
	return buf
}
