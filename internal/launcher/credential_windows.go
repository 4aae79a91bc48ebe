//go:build windows

package launcher

import (
	"fmt"
	"os/exec"

	"github.com/taskmasterd/taskmasterd/internal/program"
)

func configureCredential(cmd *exec.Cmd, spec program.Spec) error {
	if spec.User != "" || spec.Group != "" {
		return fmt.Errorf("user/group spawning is not supported on windows")
	}
	return nil
}

func configureProcessGroup(cmd *exec.Cmd) {}

func startWithUmask(cmd *exec.Cmd, spec program.Spec) error {
	return cmd.Start()
}
