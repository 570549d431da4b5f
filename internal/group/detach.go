package group

import (
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
)

// detachPollInterval governs how often a detached process's shutdown
// closure re-checks for OS process exit before finalizing. Production
// workers usually exit promptly once their admin channel half-closes; this
// is a fallback poll, not the primary signal.
const detachPollInterval = 20 * time.Millisecond

// Detach removes proc from whatever list it currently occupies, begins its
// shutdown, and appends the blocking wait-and-finalize closure to actions
// (spec §4.3 detach()). The caller is responsible for ensuring proc has
// already drained to zero sessions (checkDisableWaitlistLocked, or a
// process never handed out a session to begin with); Detach does not wait
// for that itself. If removing proc leaves the group under min_processes
// or with unserved waiters, Spawn is triggered once the lock is released.
func (g *Group) Detach(proc *process.Process, actions *poolopts.Actions) {
	g.mu.Lock()

	found := false
	switch {
	case containsProcess(g.enabled, proc):
		g.enabled = removeProcess(g.enabled, proc)
		g.pq.Remove(proc)
		found = true
	case containsProcess(g.disabling, proc):
		g.disabling = removeProcess(g.disabling, proc)
		found = true
	case containsProcess(g.disabled, proc):
		g.disabled = removeProcess(g.disabled, proc)
		found = true
	}
	if !found {
		g.mu.Unlock()
		return
	}

	g.detached = append(g.detached, proc)
	disableFired := g.clearDisableWaitlistForLocked(proc)
	needsSpawn := len(g.enabled) < g.options.MinProcesses || len(g.getWaitlist) > 0
	unlinker := g.unlinker
	log := g.log
	g.mu.Unlock()

	proc.BeginShutdown()
	actions.Add(func() { shutdownAndFinalize(proc, unlinker, log) })

	for _, fn := range disableFired {
		fn()
	}
	if needsSpawn {
		g.Spawn()
	}
}

// DetachAll detaches every process the group currently owns (enabled,
// disabling, disabled), used for full teardown (spec Group.h detachAll,
// driven by SuperGroup/Pool destruction).
func (g *Group) DetachAll(actions *poolopts.Actions) {
	g.mu.Lock()
	all := make([]*process.Process, 0, len(g.enabled)+len(g.disabling)+len(g.disabled))
	all = append(all, g.enabled...)
	all = append(all, g.disabling...)
	all = append(all, g.disabled...)
	g.mu.Unlock()

	for _, p := range all {
		g.Detach(p, actions)
	}
}

// clearDisableWaitlistForLocked resolves every disableWaitlist entry for
// proc with DRCanceled, used when proc is detached out from under a
// pending Disable call. Must be called with g.mu held.
func (g *Group) clearDisableWaitlistForLocked(proc *process.Process) []func() {
	var fired []func()
	var remaining []disableWaiter
	for _, w := range g.disableWaitlist {
		if w.process == proc {
			w := w
			fired = append(fired, func() { w.callback(proc, DRCanceled) })
		} else {
			remaining = append(remaining, w)
		}
	}
	g.disableWaitlist = remaining
	return fired
}

// shutdownAndFinalize waits for the worker's OS process to exit, then
// finalizes it (SHUTTING_DOWN -> SHUT_DOWN, unlinking its sockets). Meant
// to run as a queued post-lock action, never while any pool/group lock is
// held (spec §5).
func shutdownAndFinalize(proc *process.Process, unlinker process.SocketUnlinker, log logger) {
	if !proc.IsDummy() {
		for proc.OSProcessExists() {
			time.Sleep(detachPollInterval)
		}
	}
	if err := proc.Finalize(unlinker); err != nil && log != nil {
		log.Warn("finalize failed", "gupid", proc.Gupid(), "err", err)
	}
}

// logger is the minimal surface shutdownAndFinalize needs from *slog.Logger,
// kept narrow so tests can pass nil without pulling in slog.
type logger interface {
	Warn(msg string, args ...any)
}
