//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// hideWindow keeps helper binaries from flashing console windows.
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
