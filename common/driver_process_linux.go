package common

import (
	"os/exec"
	"syscall"
)

// killAfterParent makes the kernel kill the driver when the launcher dies.
func killAfterParent(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
	}
}
