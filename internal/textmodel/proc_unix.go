//go:build unix

package textmodel

import (
	"errors"
	"io/fs"
	"os/exec"
	"syscall"
)

// killGroupOnCancel starts the process in its own group and kills the whole
// group on cancellation, so helpers spawned by the model CLI die with it.
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
}

func isStartError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.ENOEXEC)
}
