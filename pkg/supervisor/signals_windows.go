//go:build windows

package supervisor

import "os"

// Windows has neither SIGTERM nor SIGHUP; Reload fails there.
var (
	terminateSignal = os.Interrupt
	reloadSignal    = os.Interrupt
)
