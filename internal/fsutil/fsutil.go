// Package fsutil holds small filesystem helpers shared by the operator.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data next to path and renames it into place, so a
// reader never observes a partially written file. Parent directories are
// created as needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// File is one entry of a WriteFilesAtomic batch.
type File struct {
	Path string
	Data []byte
}

// WriteFilesAtomic stages every file next to its destination and renames
// them into place only once all of them were written. A staging failure
// removes the staged files and leaves every destination untouched.
func WriteFilesAtomic(files []File, perm os.FileMode) error {
	staged := make([]string, 0, len(files))
	cleanup := func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}

	for _, f := range files {
		dir := filepath.Dir(f.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cleanup()
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		tmpPath := f.Path + ".tmp"
		if err := os.WriteFile(tmpPath, f.Data, perm); err != nil {
			cleanup()
			return fmt.Errorf("failed to write temporary file for %s: %w", f.Path, err)
		}
		staged = append(staged, tmpPath)
	}

	for i, f := range files {
		if err := os.Rename(staged[i], f.Path); err != nil {
			staged = staged[i:]
			cleanup()
			return fmt.Errorf("failed to rename temporary file for %s: %w", f.Path, err)
		}
	}
	return nil
}
