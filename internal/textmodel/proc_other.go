//go:build !unix

package textmodel

import (
	"errors"
	"io/fs"
	"os/exec"
)

func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}

func isStartError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
