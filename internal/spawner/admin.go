package spawner

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/procpool/procpool/internal/process"
)

// stdinAdminCloser adapts a worker's stdin/stdout pipes to
// process.AdminCloser and process.OOBWRunner: direct spawning has no
// separate admin socket, so the admin channel is collapsed onto the same
// pipes used for the spawn handshake. Plain Close() on stdin signals EOF
// to the child's read end for shutdown; RunOOBW additionally writes a
// go-ahead line and blocks for the worker's ack, both observed by
// runAdminReader on the worker's stdout.
type stdinAdminCloser struct {
	w       io.WriteCloser
	oobwAck chan struct{}
}

func newStdinAdminCloser(w io.WriteCloser) *stdinAdminCloser {
	return &stdinAdminCloser{w: w, oobwAck: make(chan struct{}, 1)}
}

func (a *stdinAdminCloser) CloseWrite() error {
	return a.w.Close()
}

// RunOOBW implements process.OOBWRunner (spec §4.3): sends the worker its
// out-of-band-work go-ahead and waits for runAdminReader to observe the
// matching "oobw done" line, or for ctx to expire.
func (a *stdinAdminCloser) RunOOBW(ctx context.Context) error {
	if _, err := io.WriteString(a.w, "!> oobw go\n"); err != nil {
		return err
	}
	select {
	case <-a.oobwAck:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runAdminReader watches the worker's stdout for admin-channel lines once
// the spawn handshake has completed: "!> oobw request" flags proc as
// needing out-of-band work (consumed later by Group.PollOOBW), "!> oobw
// done" acks a previously sent go-ahead. Returns once the worker's stdout
// reaches EOF, normally at process exit.
func runAdminReader(r *bufio.Reader, proc *process.Process, admin *stdinAdminCloser) {
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if strings.HasPrefix(trimmed, "!> ") {
			switch strings.TrimPrefix(trimmed, "!> ") {
			case "oobw request":
				proc.RequestOOBW()
			case "oobw done":
				select {
				case admin.oobwAck <- struct{}{}:
				default:
				}
			}
		}
		if err != nil {
			return
		}
	}
}
