//go:build !windows

package pidfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processRunning checks if a process is running using signal 0.
func processRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func sendReload(pid int) error {
	return unix.Kill(pid, unix.SIGHUP)
}
