//go:build !windows

package transcode

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// The engine runs in its own process group so a kill also takes down any
// helpers it spawned, including ones left behind after the engine itself
// has exited.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func (s *Stream) killGroup() error {
	err := syscall.Kill(-s.Pid(), syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
