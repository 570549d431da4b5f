package group

import (
	"github.com/procpool/procpool/internal/process"
)

// Get implements the routing algorithm of spec §4.3:
//  1. If some enabled process is not at full utilization, pop the
//     lowest-utilization one, start a session, push it back, return it.
//  2. Else if should_spawn(): enqueue the callback on get_waitlist, trigger
//     spawn() if not already spawning, return none.
//  3. Else (max reached for this group): enqueue on get_waitlist.
//
// The returned bool reports whether the caller was queued (no session
// available yet); callback is invoked later, without any lock held, when a
// spawn completes or a session frees up.
func (g *Group) Get(w GetWaiter) (sess *process.Session, queued bool) {
	g.mu.Lock()

	if top := g.pq.Top(); top != nil && !top.AtFullUtilization() {
		sess, err := top.NewSession()
		if err == nil {
			g.pq.Fix(top)
			g.mu.Unlock()
			return sess, false
		}
		// Fell through: utilization/capacity raced between the AtFullUtilization
		// check and NewSession; treat as if nothing was available and queue.
	}

	if g.shouldSpawnLocked() {
		g.getWaitlist = append(g.getWaitlist, w)
		spawnNow := g.spawningState == NotSpawning
		g.mu.Unlock()
		if spawnNow {
			g.Spawn()
		}
		return nil, true
	}

	g.getWaitlist = append(g.getWaitlist, w)
	g.mu.Unlock()
	return nil, true
}

// dispatchWaitlistLocked hands sessions to queued waiters while the
// top-of-queue process has room, returning the callbacks to fire
// (spec §4.5.2 assign_sessions_to_get_waiters, applied at group scope).
// Must be called with g.mu held; returns callbacks to run after unlock.
func (g *Group) dispatchWaitlistLocked() []func() {
	var fired []func()
	for len(g.getWaitlist) > 0 {
		top := g.pq.Top()
		if top == nil || top.AtFullUtilization() {
			break
		}
		sess, err := top.NewSession()
		if err != nil {
			break
		}
		g.pq.Fix(top)
		w := g.getWaitlist[0]
		g.getWaitlist = g.getWaitlist[1:]
		cb := w.Callback
		s := sess
		fired = append(fired, func() { cb(s, nil) })
	}
	return fired
}
