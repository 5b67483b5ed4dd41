//go:build windows

package fileutil

import (
	"fmt"
	"path/filepath"
	"syscall"
	"unsafe"
)

var (
	shell32          = syscall.NewLazyDLL("shell32.dll")
	shFileOperationW = shell32.NewProc("SHFileOperationW")
)

const (
	foDelete          = 3
	fofAllowUndo      = 0x40
	fofNoConfirmation = 0x10
	fofSilent         = 0x4
	fofNoErrorUI      = 0x400
)

// SHFILEOPSTRUCTW represents the Windows SHFILEOPSTRUCT structure.
// https://learn.microsoft.com/en-us/windows/win32/api/shellapi/ns-shellapi-shfileopstructw
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

// moveToWindowsTrash sends files to the Windows Recycle Bin in one
// operation, so a photo and its sidecar are restored together.
func moveToWindowsTrash(files []string) error {
	// pFrom is a list of null-terminated paths ending with an extra null
	var from []uint16
	for _, path := range files {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		pathW, err := syscall.UTF16FromString(absPath)
		if err != nil {
			return err
		}
		from = append(from, pathW...)
	}
	if len(from) == 0 {
		return nil
	}
	from = append(from, 0)

	op := shFileOpStructW{
		Func:  foDelete,
		From:  &from[0],
		Flags: fofAllowUndo | fofNoConfirmation | fofSilent | fofNoErrorUI,
	}

	ret, _, _ := shFileOperationW.Call(uintptr(unsafe.Pointer(&op)))
	if ret != 0 {
		return fmt.Errorf("SHFileOperationW failed with code %d", ret)
	}
	if op.AnyOperationsAborted != 0 {
		return fmt.Errorf("recycle bin operation aborted")
	}

	return nil
}
