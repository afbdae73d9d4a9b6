//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach puts the server in its own session so signals sent to the caller's
// process group do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
