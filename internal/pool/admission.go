package pool

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/supergroup"
)

// ErrPoolShuttingDown is returned by AsyncGet/Get once Stop has been called.
var ErrPoolShuttingDown = errors.New("pool: shutting down")

// AsyncGet implements spec §4.5.1: never suspends, at most enqueues and
// returns. callback is invoked later, without the pool lock held, once a
// session becomes available or a definitive error occurs.
func (p *Pool) AsyncGet(opts poolopts.Options, callback func(*process.Session, error)) {
	opts = opts.Normalize()
	name := opts.GroupName()

	p.mu.Lock()
	if p.lifeStatus != PoolAlive {
		p.mu.Unlock()
		callback(nil, ErrPoolShuttingDown)
		return
	}

	if sg, ok := p.supergroups[name]; ok {
		p.mu.Unlock()
		sg.Get(opts, callback)
		return
	}

	if p.utilizationLocked() < p.max {
		sg := p.createSuperGroupLocked(opts)
		p.mu.Unlock()
		sg.Get(opts, callback)
		p.kickOffInitialSpawn(sg, opts)
		return
	}

	victim, victimGroupName := p.findEvictionCandidateLocked(opts)
	if victim == nil {
		p.waitlist = append(p.waitlist, PoolWaiter{Options: opts, Callback: callback})
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	var actions poolopts.Actions
	p.mu.Lock()
	victimSG, ok := p.supergroups[victimGroupName]
	p.mu.Unlock()
	if ok {
		victimSG.DefaultGroup().Detach(victim, &actions)
	}
	actions.Run()

	p.mu.Lock()
	sg, exists := p.supergroups[name]
	if !exists {
		sg = p.createSuperGroupLocked(opts)
	}
	p.mu.Unlock()
	sg.Get(opts, callback)
	if !exists {
		p.kickOffInitialSpawn(sg, opts)
	}
}

// Get is the synchronous ticket-based wrapper around AsyncGet (spec §4.6
// "blocks on a ticket (condvar + session-or-error slot)"), implemented here
// with a buffered channel standing in for the original's condvar ticket.
func (p *Pool) Get(ctx context.Context, opts poolopts.Options) (*process.Session, error) {
	type result struct {
		sess *process.Session
		err  error
	}
	ch := make(chan result, 1)
	p.AsyncGet(opts, func(sess *process.Session, err error) {
		ch <- result{sess, err}
	})
	select {
	case r := <-ch:
		return r.sess, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) createSuperGroupLocked(opts poolopts.Options) *supergroup.SuperGroup {
	sp := p.factory.New(opts)
	sg := supergroup.New(p.ctx, opts.GroupName(), opts, sp, p.log)
	sg.OnCapacityChanged(func() { p.onCapacityChanged() })
	if opts.AppRoot != "" {
		sg.DefaultGroup().SetRestartFilePath(filepath.Join(opts.AppRoot, "tmp", "restart.txt"))
	}
	p.supergroups[opts.GroupName()] = sg
	return sg
}

// kickOffInitialSpawn triggers the new supergroup's first spawn and marks
// it READY once that spawn settles, migrating its init wait list (spec
// §4.4). Runs outside the pool lock.
func (p *Pool) kickOffInitialSpawn(sg *supergroup.SuperGroup, opts poolopts.Options) {
	g := sg.DefaultGroup()
	g.Spawn()
	go func() {
		deadline := time.Now().Add(opts.StartTimeout + time.Second)
		for g.IsSpawning() && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if g.EnabledCount() > 0 {
			sg.MarkReady(nil)
		} else {
			sg.MarkReady(errSpawnTimedOut)
		}
	}()
}

var errSpawnTimedOut = errors.New("pool: initial spawn did not complete before start_timeout")

// findEvictionCandidateLocked implements spec §4.5.1 step 3: the oldest
// idle process across all groups whose group has no waiters, or (if
// allow_trashing_non_idle_processes) the oldest last_used among all
// enabled processes. Must be called with p.mu held.
func (p *Pool) findEvictionCandidateLocked(opts poolopts.Options) (victim *process.Process, groupName string) {
	var oldestIdle *process.Process
	var oldestIdleGroup string
	var oldestIdleTime time.Time

	var oldestUsed *process.Process
	var oldestUsedGroup string
	var oldestUsedTime time.Time

	for name, sg := range p.supergroups {
		g := sg.DefaultGroup()
		if g.GetWaitlistSize() > 0 {
			continue
		}
		enabled, _, _ := g.Processes()
		for _, proc := range enabled {
			if proc.IsIdle() {
				if oldestIdle == nil || proc.LastUsed().Before(oldestIdleTime) {
					oldestIdle, oldestIdleGroup, oldestIdleTime = proc, name, proc.LastUsed()
				}
			}
			if opts.AllowTrashingNonIdle {
				if oldestUsed == nil || proc.LastUsed().Before(oldestUsedTime) {
					oldestUsed, oldestUsedGroup, oldestUsedTime = proc, name, proc.LastUsed()
				}
			}
		}
	}
	if oldestIdle != nil {
		return oldestIdle, oldestIdleGroup
	}
	if opts.AllowTrashingNonIdle && oldestUsed != nil {
		return oldestUsed, oldestUsedGroup
	}
	return nil, ""
}

func (p *Pool) onCapacityChanged() {
	var actions poolopts.Actions
	p.assignSessionsToGetWaiters(&actions)
	actions.Run()
	p.possiblySpawnMoreProcessesForExistingGroups()
}

// assignSessionsToGetWaiters implements spec §4.5.2: walk the pool wait
// list and, for each waiter, find a matching supergroup (delegate to its
// get) or create one if there's free capacity; otherwise leave it queued.
func (p *Pool) assignSessionsToGetWaiters(actions *poolopts.Actions) {
	p.mu.Lock()
	waiters := p.waitlist
	p.waitlist = nil
	p.mu.Unlock()

	var remaining []PoolWaiter
	for _, w := range waiters {
		name := w.Options.GroupName()
		p.mu.Lock()
		sg, ok := p.supergroups[name]
		if !ok && p.utilizationLocked() < p.max {
			sg = p.createSuperGroupLocked(w.Options)
			ok = true
		}
		p.mu.Unlock()
		if !ok {
			remaining = append(remaining, w)
			continue
		}
		w := w
		actions.Add(func() { sg.Get(w.Options, w.Callback) })
	}

	p.mu.Lock()
	p.waitlist = append(remaining, p.waitlist...)
	p.mu.Unlock()
}

// possiblySpawnMoreProcessesForExistingGroups implements spec §4.5.2: walk
// every group once, spawning groups that have waiters and room to grow,
// then a second pass for groups under min_processes regardless of waiters.
func (p *Pool) possiblySpawnMoreProcessesForExistingGroups() {
	p.mu.Lock()
	groups := make([]*supergroup.SuperGroup, 0, len(p.supergroups))
	for _, sg := range p.supergroups {
		groups = append(groups, sg)
	}
	p.mu.Unlock()

	for _, sg := range groups {
		g := sg.DefaultGroup()
		if g.GetWaitlistSize() > 0 {
			g.Spawn()
		}
	}
	for _, sg := range groups {
		g := sg.DefaultGroup()
		if g.EnabledCount() < g.Options().MinProcesses {
			g.Spawn()
		}
	}
}
