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

// Move moves files into destDir. Name collisions are resolved with one
// counter shared by all files (photo_1.jpg, photo_1.xmp), so a photo keeps
// the base name of its sidecar.
func Move(destDir string, files ...string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	names := uniqueNames(files, func(name string) bool {
		_, err := os.Stat(filepath.Join(destDir, name))
		return os.IsNotExist(err)
	})

	for i, src := range files {
		if err := moveFileAcrossFS(src, filepath.Join(destDir, names[i])); err != nil {
			return err
		}
	}
	return nil
}

// uniqueNames returns a destination name per file, appending the same
// counter to every name until all of them are available
func uniqueNames(files []string, isAvailable func(string) bool) []string {
	names := make([]string, len(files))
	for counter := 0; ; counter++ {
		free := true
		for i, src := range files {
			names[i] = withCounter(filepath.Base(src), counter)
			if !isAvailable(names[i]) {
				free = false
				break
			}
		}
		if free {
			return names
		}
	}
}

func withCounter(filename string, counter int) string {
	if counter == 0 {
		return filename
	}
	ext := filepath.Ext(filename)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(filename, ext), counter, ext)
}

// moveFileAcrossFS moves a file, falling back to copy+delete for cross-filesystem moves.
func moveFileAcrossFS(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	// Check if it's a cross-device link error
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(src, dest); err != nil {
			return err
		}
		return os.Remove(src)
	}

	return err
}

// copyFile copies a file from src to dest, keeping its mode and mtime.
// The mtime matters: capture times fall back to it.
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

	if _, err := io.Copy(destFile, srcFile); err != nil {
		destFile.Close()
		os.Remove(dest) // Clean up on failure
		return err
	}
	if err := destFile.Close(); err != nil {
		os.Remove(dest)
		return err
	}

	return os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime())
}

// MoveToTrash moves files to the system trash/recycle bin.
// - macOS: ~/.Trash
// - Linux: ~/.local/share/Trash (freedesktop.org spec)
// - Windows: Recycle Bin (via shell32.dll)
func MoveToTrash(files ...string) error {
	switch runtime.GOOS {
	case "windows":
		return moveToWindowsTrash(files)
	case "linux":
		trashDir, err := getTrashDir()
		if err != nil {
			return err
		}
		return moveToLinuxTrash(files, trashDir)
	default: // darwin, etc.
		trashDir, err := getTrashDir()
		if err != nil {
			return err
		}
		return Move(trashDir, files...)
	}
}

// getTrashDir returns the path to the system trash directory.
func getTrashDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	var trashDir string
	switch runtime.GOOS {
	case "darwin":
		trashDir = filepath.Join(homeDir, ".Trash")
	case "linux":
		trashDir = filepath.Join(homeDir, ".local", "share", "Trash", "files")
	default:
		trashDir = filepath.Join(homeDir, "photocull_trash")
	}

	if err := os.MkdirAll(trashDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create trash directory: %w", err)
	}

	return trashDir, nil
}

// moveToLinuxTrash moves files to Linux trash with proper .trashinfo metadata.
func moveToLinuxTrash(files []string, trashFilesDir string) error {
	trashInfoDir := filepath.Join(filepath.Dir(trashFilesDir), "info")
	if err := os.MkdirAll(trashInfoDir, 0755); err != nil {
		return err
	}

	// Names must be free in both the files dir and the info dir
	names := uniqueNames(files, func(name string) bool {
		_, err1 := os.Stat(filepath.Join(trashFilesDir, name))
		_, err2 := os.Stat(filepath.Join(trashInfoDir, name+".trashinfo"))
		return os.IsNotExist(err1) && os.IsNotExist(err2)
	})

	deletedAt := time.Now().Format("2006-01-02T15:04:05")
	for i, src := range files {
		absPath, err := filepath.Abs(src)
		if err != nil {
			return err
		}

		dest := filepath.Join(trashFilesDir, names[i])
		infoPath := filepath.Join(trashInfoDir, names[i]+".trashinfo")

		info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n", absPath, deletedAt)
		if err := os.WriteFile(infoPath, []byte(info), 0644); err != nil {
			return err
		}

		if err := moveFileAcrossFS(src, dest); err != nil {
			os.Remove(infoPath) // Clean up .trashinfo if move fails
			return err
		}
	}

	return nil
}
