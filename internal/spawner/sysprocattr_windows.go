//go:build windows

package spawner

import (
	"os/exec"

	"github.com/procpool/procpool/internal/poolopts"
)

func configureSysProcAttr(cmd *exec.Cmd, opts poolopts.Options) {
	_ = cmd
	_ = opts
}
