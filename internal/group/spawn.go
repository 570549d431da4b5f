package group

import (
	"time"

	"github.com/procpool/procpool/internal/metrics"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/spawner"
)

// Spawn is idempotent: if not already spawning and should_spawn() holds,
// marks SPAWNING and submits a spawn task to a background goroutine. On
// completion it re-enters the lock, inserts the new Process into enabled,
// and wakes waiters (spec §4.3 spawn()).
func (g *Group) Spawn() {
	g.mu.Lock()
	if g.spawningState != NotSpawning {
		g.mu.Unlock()
		return
	}
	if !g.shouldSpawnLocked() && len(g.enabled) >= g.options.MinProcesses {
		g.mu.Unlock()
		return
	}
	g.spawningState = Spawning
	opts := g.options
	sp := g.sp
	g.mu.Unlock()

	go g.runSpawn(opts, sp, false)
}

// runSpawn performs the actual (possibly slow, possibly blocking) spawn
// negotiation outside any lock, then re-acquires the Group lock only to
// apply the result and build post-lock actions (spec §5 "spawn workers
// block inside negotiation; they do not hold the pool lock during I/O").
func (g *Group) runSpawn(opts poolopts.Options, sp spawner.Spawner, restarting bool) {
	_ = restarting
	start := time.Now()
	proc, err := sp.Spawn(g.ctx, opts)

	g.mu.Lock()
	if err != nil {
		g.spawningState = NotSpawning
		waiters := g.getWaitlist
		g.getWaitlist = nil
		g.log.Warn("spawn failed", "group", g.name, "err", err)
		g.mu.Unlock()
		metrics.ObserveSpawn(g.name, "failure", time.Since(start).Seconds())
		for _, w := range waiters {
			w.Callback(nil, err)
		}
		g.notifyCapacityChanged()
		return
	}

	disableFired := g.attachLocked(proc)
	g.spawningState = NotSpawning
	fired := g.dispatchWaitlistLocked()
	g.mu.Unlock()

	metrics.ObserveSpawn(g.name, "success", time.Since(start).Seconds())
	for _, fn := range disableFired {
		fn()
	}
	for _, fn := range fired {
		fn()
	}
	g.notifyCapacityChanged()
}

// attachLocked adds proc to enabled, installs its session-closed hook, and
// resolves any pending disableWaitlist entries the same way Group.h's
// attach() does (must be called with g.mu held). Disabling processes that
// already have zero sessions move to disabled; the returned DRSuccess
// callbacks are run after unlock.
func (g *Group) attachLocked(proc *process.Process) []func() {
	g.enabled = append(g.enabled, proc)
	g.pq.Insert(proc)
	proc.SetSessionClosedHook(g.onSessionClosed)
	var fired []func()
	for _, w := range append([]disableWaiter(nil), g.disableWaitlist...) {
		fired = append(fired, g.checkDisableWaitlistLocked(w.process)...)
	}
	return fired
}

// onSessionClosed is installed on every attached Process; it re-checks the
// group's waitlist and disable-waitlist the way Process::sessionClosed's
// call into Group::onSessionClose does (original_source Process.h/Group.h).
func (g *Group) onSessionClosed(proc *process.Process) {
	g.mu.Lock()
	if g.pq.Contains(proc) {
		g.pq.Fix(proc)
	}
	fired := g.dispatchWaitlistLocked()
	disableFired := g.checkDisableWaitlistLocked(proc)
	drained := g.checkRestartDrainLocked(proc)
	g.mu.Unlock()

	for _, fn := range fired {
		fn()
	}
	for _, fn := range disableFired {
		fn()
	}
	if drained {
		var actions poolopts.Actions
		g.Detach(proc, &actions)
		actions.Run()
	}
	if len(fired) > 0 || len(disableFired) > 0 || drained {
		g.notifyCapacityChanged()
	}
}

// checkRestartDrainLocked reports and clears whether proc is a
// restart-superseded process that has just finished draining to zero
// sessions, the trigger for detaching it (spec §4.3 scenario S7). Must be
// called with g.mu held.
func (g *Group) checkRestartDrainLocked(proc *process.Process) bool {
	for i, p := range g.restartDraining {
		if p == proc {
			if proc.Sessions() != 0 {
				return false
			}
			g.restartDraining = append(g.restartDraining[:i], g.restartDraining[i+1:]...)
			return true
		}
	}
	return false
}

func (g *Group) notifyCapacityChanged() {
	g.mu.Lock()
	fn := g.onCapacityChanged
	g.mu.Unlock()
	if fn != nil {
		fn()
	}
}
