// Package pidfile records the operator's process id and lets a second
// invocation signal the running operator.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/getmockd/reflector/internal/fsutil"
)

// Common errors.
var (
	ErrNotFound   = errors.New("pid file not found")
	ErrInvalid    = errors.New("pid file does not hold a process id")
	ErrNotRunning = errors.New("operator is not running")
)

// Write records pid at path as a decimal number.
func Write(path string, pid int) error {
	if err := fsutil.WriteFileAtomic(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Read returns the pid recorded at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalid, path)
	}
	return pid, nil
}

// Remove deletes the pid file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether a process with pid exists.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return processRunning(pid)
}

// SignalReload asks the operator recorded at path to reload its topology.
// It returns the pid that was signalled.
func SignalReload(path string) (int, error) {
	pid, err := Read(path)
	if err != nil {
		return 0, err
	}
	if !IsRunning(pid) {
		return pid, fmt.Errorf("%w (stale pid %d in %s)", ErrNotRunning, pid, path)
	}
	if err := sendReload(pid); err != nil {
		return pid, fmt.Errorf("signalling pid %d: %w", pid, err)
	}
	return pid, nil
}
