//go:build !windows

package fileutil

import "errors"

// moveToWindowsTrash is never reached outside Windows; Trash.Move switches on GOOS
func moveToWindowsTrash(string) error {
	return errors.New("recycle bin is only available on windows")
}
