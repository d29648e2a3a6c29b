//go:build !windows

package cryocare

import (
	"os/exec"
	"syscall"
)

// Programs run under bash -c, so the whole group is killed to stop the
// python process and any workers it spawned.
func killProcessGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
