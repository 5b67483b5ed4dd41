//go:build !windows

package fileutil

import "errors"

// moveToWindowsTrash is never reached outside Windows
func moveToWindowsTrash(files []string) error {
	return errors.New("Windows Recycle Bin is not available on this platform")
}
