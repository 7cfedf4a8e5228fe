// Package prereq checks that the files and directories the operator depends
// on exist before anything is started.
package prereq

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
)

// MissingError reports a required path that does not exist.
type MissingError struct {
	What string
	Path string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing %s: %s", e.What, e.Path)
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *MissingError) Hint() string {
	switch e.What {
	case "binary":
		return fmt.Sprintf("Install the binary or point the matching --*-bin flag at it (looked for %q).", e.Path)
	case "template":
		return "Check the camo.template name against the directories in --camo-dir."
	default:
		return fmt.Sprintf("Create %q or pass a different path on the command line.", e.Path)
	}
}

// IsMissing reports whether err is or wraps a *MissingError.
func IsMissing(err error) bool {
	var me *MissingError
	return errors.As(err, &me)
}

// File requires path to exist and not be a directory.
func File(what, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &MissingError{What: what, Path: path}
		}
		return fmt.Errorf("checking %s: %w", what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s %s is a directory", what, path)
	}
	return nil
}

// Dir requires path to exist and be a directory.
func Dir(what, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &MissingError{What: what, Path: path}
		}
		return fmt.Errorf("checking %s: %w", what, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %s is not a directory", what, path)
	}
	return nil
}

// Binary requires path to resolve to an executable, either directly or
// through PATH when it has no separator.
func Binary(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return &MissingError{What: "binary", Path: path}
	}
	return nil
}

// Check is one named prerequisite.
type Check func() error

// All runs the checks in order and joins every failure.
func All(checks ...Check) error {
	var errs []error
	for _, c := range checks {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
