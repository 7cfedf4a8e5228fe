//go:build windows

package operator

import "os"

// Windows has no SIGHUP; reloads are not available there.
var (
	reloadSignals   = []os.Signal{}
	shutdownSignals = []os.Signal{os.Interrupt}
)
