//go:build unix

package osutil

import (
	"os/exec"
	"syscall"
)

// SetProcessGroup runs the skill in its own process group so the whole tree
// can be signalled together.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SetProcessGroupKill kills the entire process group when the command's
// context is cancelled. Must be called before cmd.Start().
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
