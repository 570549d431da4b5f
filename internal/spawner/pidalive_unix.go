//go:build !windows

package spawner

import (
	"errors"
	"syscall"
)

// pidAlive reports whether a process with the given pid exists, treating
// EPERM (exists but owned by another user) as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
