package pool

import (
	"context"
	"time"

	"github.com/procpool/procpool/internal/group"
	"github.com/procpool/procpool/internal/metrics"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
)

// oobwTimeout bounds how long gcPass waits for one process's out-of-band
// work to finish before giving up and re-enabling it anyway.
const oobwTimeout = time.Minute

// gcBaseInterval bounds how long the GC loop ever sleeps without being
// woken explicitly, standing in for the original's condvar wait: there is
// always a next wake time, computed from the nearest idle deadline across
// enabled processes, and this is the ceiling when no such deadline is
// nearer. Preloader (spawner) idle deadlines are not part of that
// computation; idle preloaders are only checked once per pass.
const gcBaseInterval = time.Second

// gcLoop is the garbage collector thread (spec §4.5.3): wakes on a timer
// or explicit nudge (set_max_idle_time), and for every group
// detaches idle processes past max_idle_time (while above min_processes)
// and cleans up idle preloaders.
func (p *Pool) gcLoop() {
	defer p.wg.Done()
	timer := time.NewTimer(gcBaseInterval)
	defer timer.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.gcWake:
		case <-timer.C:
		}
		next := p.gcPass()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if next <= 0 {
			next = gcBaseInterval
		}
		timer.Reset(next)
	}
}

// gcPass runs one collection pass and returns the delay until the next
// process idle deadline, or gcBaseInterval if none is nearer.
func (p *Pool) gcPass() time.Duration {
	p.mu.Lock()
	maxIdle := p.maxIdleTime
	groups := make([]*group.Group, 0, len(p.supergroups))
	for _, sg := range p.supergroups {
		groups = append(groups, sg.DefaultGroup())
	}
	p.mu.Unlock()

	if maxIdle <= 0 {
		return gcBaseInterval
	}

	now := time.Now()
	nextDeadline := now.Add(gcBaseInterval)
	var actions poolopts.Actions

	for _, g := range groups {
		g.PollRestartFile(g.Options(), &actions)
		g.PollOOBW(p.ctx, func(proc *process.Process) { p.runOOBWCallback(g, proc) })

		minProcs := g.Options().MinProcesses
		enabled, _, _ := g.Processes()
		for _, proc := range enabled {
			if proc.Sessions() != 0 {
				continue
			}
			deadline := proc.LastUsed().Add(maxIdle)
			if !deadline.After(now) {
				if g.EnabledCount() > minProcs {
					g.Detach(proc, &actions)
					metrics.IncGCEvictions()
				}
				continue
			}
			if deadline.Before(nextDeadline) {
				nextDeadline = deadline
			}
		}
		if err := g.CleanupSpawnerIfIdle(g.Options().MaxPreloaderIdle); err != nil {
			p.log.Warn("preloader cleanup failed", "group", g.Name(), "err", err)
		}
	}
	actions.Run()

	if nextDeadline.Before(now) {
		return 0
	}
	return nextDeadline.Sub(now)
}

// runOOBWCallback is the onOOBWReady hook passed to Group.PollOOBW: it
// drives proc's admin channel through one out-of-band-work cycle (spec
// §4.3), bounded by oobwTimeout so a worker that never acks doesn't wedge
// the GC loop forever.
func (p *Pool) runOOBWCallback(g *group.Group, proc *process.Process) {
	ctx, cancel := context.WithTimeout(p.ctx, oobwTimeout)
	defer cancel()
	if err := proc.RunOOBW(ctx); err != nil {
		p.log.Warn("oobw failed", "group", g.Name(), "gupid", proc.Gupid(), "err", err)
	}
}

