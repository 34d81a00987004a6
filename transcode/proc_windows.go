//go:build windows

package transcode

import "os/exec"

func setProcAttr(cmd *exec.Cmd) {}

func (s *Stream) killGroup() error {
	return s.cmd.Process.Kill()
}
