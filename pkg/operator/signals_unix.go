//go:build !windows

package operator

import (
	"os"

	"golang.org/x/sys/unix"
)

var (
	reloadSignals   = []os.Signal{unix.SIGHUP}
	shutdownSignals = []os.Signal{os.Interrupt, unix.SIGTERM}
)
