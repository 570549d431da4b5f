package process

import (
	"context"
	"fmt"
	"sync"
)

// AdminCloser models the process's admin socket: closing write signals the
// worker to interpret EOF on stdin as a graceful-exit request (spec §4.1
// "ALIVE -> SHUTTING_DOWN performs a half-shutdown on the admin socket").
type AdminCloser interface {
	CloseWrite() error
}

// OOBWRunner is an admin channel that can additionally drive a worker
// through one out-of-band-work cycle: send the go-ahead and block until
// the worker acks completion (spec §4.3). Not every AdminCloser supports
// this (the dummy spawner's does not), so Process probes for it with a
// type assertion rather than requiring it on AdminCloser itself.
type OOBWRunner interface {
	RunOOBW(ctx context.Context) error
}

// RunOOBW drives the process's admin channel through one out-of-band-work
// cycle if it supports OOBWRunner, otherwise it is a no-op success (spec
// §4.3; matches a worker that never asked for OOBW having nothing to run).
func (p *Process) RunOOBW(ctx context.Context) error {
	p.mu.Lock()
	admin := p.admin
	p.mu.Unlock()
	runner, ok := admin.(OOBWRunner)
	if !ok {
		return nil
	}
	return runner.RunOOBW(ctx)
}

// SocketUnlinker removes the on-disk artifacts of a unix-domain socket
// (spec §3 "Process in SHUT_DOWN releases its listener sockets").
type SocketUnlinker interface {
	Unlink(address string) error
}

// SetAdminCloser registers the process's admin-channel half-close hook
// (its Spawner's stdin pipe in practice), used by BeginShutdown.
func (p *Process) SetAdminCloser(admin AdminCloser) {
	p.mu.Lock()
	p.admin = admin
	p.mu.Unlock()
}

// BeginShutdown transitions ALIVE -> SHUTTING_DOWN and half-closes the
// admin channel so the worker sees EOF on stdin (spec §4.1). It is a bug
// to call this more than once or from ShutDown; such misuse is an
// invariant violation (spec §7) and panics with a diagnostic rather than
// silently doing nothing, matching the stated error-handling policy.
func (p *Process) BeginShutdown() {
	p.mu.Lock()
	if p.lifeStatus != Alive {
		status := p.lifeStatus
		p.mu.Unlock()
		panic(fmt.Sprintf("process %s: BeginShutdown called while in %s", p.gupid, status))
	}
	p.lifeStatus = ShuttingDown
	admin := p.admin
	p.mu.Unlock()
	if admin != nil {
		_ = admin.CloseWrite()
	}
}

// Finalize transitions SHUTTING_DOWN -> SHUT_DOWN. It requires sessions==0
// and OS-process absence (spec §4.1); callers (Group.detach's post-lock
// action) are expected to have already waited for both. Unlinks the
// process's unix-domain socket files.
func (p *Process) Finalize(unlinker SocketUnlinker) error {
	p.mu.Lock()
	if p.lifeStatus != ShuttingDown {
		status := p.lifeStatus
		p.mu.Unlock()
		panic(fmt.Sprintf("process %s: Finalize called while in %s", p.gupid, status))
	}
	if p.sessions != 0 {
		sessions := p.sessions
		p.mu.Unlock()
		panic(fmt.Sprintf("process %s: Finalize called with %d open sessions", p.gupid, sessions))
	}
	pid := p.pid
	sockets := append([]*Socket(nil), p.sockets...)
	p.lifeStatus = ShutDown
	p.mu.Unlock()

	if p.dummy {
		return nil
	}
	if p.liveChecker.Exists(pid) {
		return fmt.Errorf("process %s: OS process %d still present at finalize", p.gupid, pid)
	}
	if unlinker == nil {
		return nil
	}
	var firstErr error
	var once sync.Once
	for _, s := range sockets {
		if err := unlinker.Unlink(s.Address); err != nil {
			once.Do(func() { firstErr = err })
		}
	}
	return firstErr
}

// OSProcessExists reports whether the underlying OS process is still
// present. A negative observation is memoized by the LiveChecker so a
// recycled pid is never mistaken for the original (spec §4.1).
func (p *Process) OSProcessExists() bool {
	p.mu.Lock()
	pid := p.pid
	lc := p.liveChecker
	p.mu.Unlock()
	if lc == nil {
		return false
	}
	return lc.Exists(pid)
}
