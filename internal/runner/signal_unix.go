//go:build !windows

// Grounded on internal/agentctl/client/launcher/platform_unix.go's
// gracefulStop: SIGINT for cooperative agent cancellation, falling back to
// SIGKILL when the process won't respond.
package runner

import (
	"os"
	"syscall"
)

func (h *Handle) signal(proc *os.Process) error {
	return proc.Signal(syscall.SIGINT)
}
