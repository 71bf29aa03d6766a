//go:build !windows

package launcher

import (
	"os"
	"os/exec"
	"syscall"
)

// detachAttrs puts the target in its own process group so signals aimed at it
// never reach the invocation, and the whole group can be terminated at once.
func detachAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// sessionAttrs detaches the capture sidecar into its own session so it
// survives the invocation process and any controlling terminal.
func sessionAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func executable(info os.FileInfo) bool {
	return info.Mode()&0o111 != 0
}

func terminateGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	_ = syscall.Kill(pid, syscall.SIGTERM)
}

func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
