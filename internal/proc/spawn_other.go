//go:build !windows

package proc

import (
	"os/exec"
	"syscall"
)

// HideWindow is a no-op off Windows.
func HideWindow(cmd *exec.Cmd) {}

// RequestExit sends SIGTERM; the caller escalates to Kill after its grace
// period.
func RequestExit(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}
