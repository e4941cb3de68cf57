//go:build windows

package runner

import "os"

func (h *Handle) signal(proc *os.Process) error {
	return proc.Kill()
}
