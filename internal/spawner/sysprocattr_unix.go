//go:build !windows

package spawner

import (
	"os/exec"
	"syscall"

	"github.com/procpool/procpool/internal/poolopts"
)

// configureSysProcAttr puts the worker in its own process group so a
// negotiation timeout can signal the whole group. PreexecChroot/
// PostexecChroot and user/group switching are documented no-ops; see
// SPEC_FULL.md Non-goals.
func configureSysProcAttr(cmd *exec.Cmd, opts poolopts.Options) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	_ = opts
}
