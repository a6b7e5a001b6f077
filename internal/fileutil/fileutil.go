// Package fileutil moves deleted media out of the library, either into a
// folder of the user's choosing or into the system trash.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// MoveFile moves a file into destDir.
// If a file with the same name exists, a counter is appended (e.g., clip_1.mov).
func MoveFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}

	destName := uniqueName(filepath.Base(src), func(name string) bool {
		_, err := os.Stat(filepath.Join(destDir, name))
		return os.IsNotExist(err)
	})

	dest := filepath.Join(destDir, destName)
	return dest, moveAcrossFS(src, dest)
}

// uniqueName returns filename, or filename with a counter appended, such
// that isAvailable reports true
func uniqueName(filename string, isAvailable func(string) bool) string {
	if isAvailable(filename) {
		return filename
	}

	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", name, counter, ext)
		if isAvailable(candidate) {
			return candidate
		}
	}
}

// moveAcrossFS renames src to dest, falling back to copy+delete across filesystems
func moveAcrossFS(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(src, dest); err != nil {
			return err
		}
		return os.Remove(src)
	}
	return err
}

func copyFile(src, dest string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, srcFile); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// Trash moves files into a freedesktop.org style trash (files/ plus
// info/*.trashinfo). The zero value targets the system trash of the
// current platform; Dir pins the trash root, which tests and the
// --trash-dir flag use.
type Trash struct {
	Dir string
}

// MoveToTrash moves a file to the system trash
func MoveToTrash(src string) error {
	return Trash{}.Move(src)
}

// Move moves src into the trash
//   - macOS: ~/.Trash
//   - Linux: ~/.local/share/Trash
//   - Windows: Recycle Bin (via shell32.dll)
func (t Trash) Move(src string) error {
	if t.Dir != "" {
		return moveToFreedesktopTrash(src, t.Dir)
	}

	switch runtime.GOOS {
	case "windows":
		return moveToWindowsTrash(src)
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		return moveToFreedesktopTrash(src, filepath.Join(home, ".local", "share", "Trash"))
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		_, err = MoveFile(src, filepath.Join(home, ".Trash"))
		return err
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		_, err = MoveFile(src, filepath.Join(home, "mediadupfinder_trash"))
		return err
	}
}

// moveToFreedesktopTrash moves a file into root/files and writes the
// matching root/info/<name>.trashinfo record
func moveToFreedesktopTrash(src, root string) error {
	filesDir := filepath.Join(root, "files")
	infoDir := filepath.Join(root, "info")
	for _, dir := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create trash directory: %w", err)
		}
	}

	absPath, err := filepath.Abs(src)
	if err != nil {
		return err
	}

	// the name must be free in both files/ and info/
	destName := uniqueName(filepath.Base(src), func(name string) bool {
		_, err1 := os.Stat(filepath.Join(filesDir, name))
		_, err2 := os.Stat(filepath.Join(infoDir, name+".trashinfo"))
		return os.IsNotExist(err1) && os.IsNotExist(err2)
	})

	infoPath := filepath.Join(infoDir, destName+".trashinfo")
	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		absPath,
		time.Now().Format("2006-01-02T15:04:05"))
	if err := os.WriteFile(infoPath, []byte(info), 0644); err != nil {
		return err
	}

	if err := moveAcrossFS(src, filepath.Join(filesDir, destName)); err != nil {
		os.Remove(infoPath)
		return err
	}
	return nil
}
