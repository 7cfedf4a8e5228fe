//go:build !windows

package supervisor

import "golang.org/x/sys/unix"

var (
	terminateSignal = unix.SIGTERM
	reloadSignal    = unix.SIGHUP
)
