//go:build windows

package fileutil

import (
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"
)

var shFileOperationW = windows.NewLazySystemDLL("shell32.dll").NewProc("SHFileOperationW")

const (
	foDelete = 3

	// recycle quietly: no prompts, no progress dialog, no error boxes
	recycleFlags = 0x40 | 0x10 | 0x4 | 0x400 // FOF_ALLOWUNDO | FOF_NOCONFIRMATION | FOF_SILENT | FOF_NOERRORUI
)

// shFileOpStructW mirrors SHFILEOPSTRUCTW from shellapi.h
type shFileOpStructW struct {
	Hwnd                 uintptr
	Func                 uint32
	From                 *uint16
	To                   *uint16
	Flags                uint16
	AnyOperationsAborted int32
	NameMappings         uintptr
	ProgressTitle        *uint16
}

// recycle sends absolute paths to the Recycle Bin in one shell operation
func recycle(paths ...string) error {
	from, err := pathList(paths...)
	if err != nil {
		return err
	}
	op := shFileOpStructW{
		Func:  foDelete,
		From:  &from[0],
		Flags: recycleFlags,
	}
	ret, _, _ := shFileOperationW.Call(uintptr(unsafe.Pointer(&op)))
	if ret != 0 || op.AnyOperationsAborted != 0 {
		return recycleError(ret, op.AnyOperationsAborted != 0, paths)
	}
	return nil
}

func moveToWindowsTrash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return recycle(abs)
}
