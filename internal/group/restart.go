package group

import (
	"os"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
)

// Restart implements Group.h's restart(): every currently-enabled process
// is moved to disabling so no new session is routed to it, a fresh spawn is
// triggered immediately under opts, and each old process is detached as it
// drains to zero sessions (spec §4.3, scenario S7). Callers already holding
// sessions against the old generation keep them until they close normally.
func (g *Group) Restart(opts poolopts.Options, actions *poolopts.Actions) {
	g.mu.Lock()
	draining := append([]*process.Process(nil), g.enabled...)
	g.enabled = nil
	for _, p := range draining {
		g.pq.Remove(p)
	}
	g.disabling = append(g.disabling, draining...)
	g.options = opts.Normalize()
	g.spawningState = Restarting
	g.mu.Unlock()

	for _, p := range draining {
		g.checkAndDetachIfDrainedLocked(p, actions)
	}

	g.mu.Lock()
	g.spawningState = NotSpawning
	g.mu.Unlock()
	g.Spawn()
}

// checkAndDetachIfDrainedLocked detaches p immediately if it already has no
// open sessions (the common case for an idle process at restart time);
// otherwise it is left on the disabling list, recorded in restartDraining,
// and onSessionClosed's call to checkRestartDrainLocked detaches it once it
// empties. Despite the name the caller must not hold g.mu: it takes the
// lock itself (and Detach does too).
func (g *Group) checkAndDetachIfDrainedLocked(p *process.Process, actions *poolopts.Actions) {
	if p.Sessions() == 0 {
		g.Detach(p, actions)
		return
	}
	g.mu.Lock()
	g.restartDraining = append(g.restartDraining, p)
	g.mu.Unlock()
}

// PollRestartFile compares the mtime of <app_root>/tmp/restart.txt against
// the last-observed value and triggers Restart if it changed (SPEC_FULL
// supplement: file-touch-triggered restart, grounded on original_source's
// restart.txt convention which spec.md's distillation omitted). Callers are
// expected to invoke this periodically from Pool's GC loop.
func (g *Group) PollRestartFile(opts poolopts.Options, actions *poolopts.Actions) {
	g.mu.Lock()
	path := g.restartFilePath
	last := g.restartFileLastMtime
	g.mu.Unlock()
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mtime := info.ModTime()
	if !mtime.After(last) {
		return
	}
	g.mu.Lock()
	g.restartFileLastMtime = mtime
	g.mu.Unlock()
	g.Restart(opts, actions)
}

// SetRestartFilePath configures the path PollRestartFile watches, normally
// filepath.Join(AppRoot, "tmp", "restart.txt").
func (g *Group) SetRestartFilePath(path string) {
	g.mu.Lock()
	g.restartFilePath = path
	g.restartFileLastMtime = time.Time{}
	g.mu.Unlock()
}
