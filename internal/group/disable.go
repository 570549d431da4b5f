package group

import "github.com/procpool/procpool/internal/process"

// DisableResult is returned by Disable (spec §4.3).
type DisableResult int

const (
	DRSuccess DisableResult = iota
	DRDeferred
	DRNoOp
	DRError
	DRCanceled
)

func (r DisableResult) String() string {
	switch r {
	case DRSuccess:
		return "DR_SUCCESS"
	case DRDeferred:
		return "DR_DEFERRED"
	case DRNoOp:
		return "DR_NOOP"
	case DRCanceled:
		return "DR_CANCELED"
	default:
		return "DR_ERROR"
	}
}

// Disable transitions proc ENABLED -> DISABLING (spec §4.3). If proc has no
// open sessions and the group would be left with at least one other enabled
// process, it completes immediately with DRSuccess (proc goes straight to
// disabled); if proc still has open sessions, or would be
// the last enabled process, it is queued to drain and DRDeferred is
// returned (callback fires later via post-lock action). DRNoOp means proc
// was already disabled; DRError means proc isn't a member of this group.
func (g *Group) Disable(proc *process.Process, callback func(*process.Process, DisableResult)) DisableResult {
	g.mu.Lock()

	switch {
	case containsProcess(g.enabled, proc):
		wasLastEnabled := len(g.enabled) <= 1
		if wasLastEnabled || proc.Sessions() > 0 {
			g.enabled = removeProcess(g.enabled, proc)
			g.pq.Remove(proc)
			g.disabling = append(g.disabling, proc)
			g.disableWaitlist = append(g.disableWaitlist, disableWaiter{process: proc, callback: callback})
			spawnToAvoidBlocking := len(g.enabled) == 0
			g.mu.Unlock()
			if spawnToAvoidBlocking {
				g.Spawn()
			}
			return DRDeferred
		}
		g.enabled = removeProcess(g.enabled, proc)
		g.pq.Remove(proc)
		g.disabled = append(g.disabled, proc)
		g.mu.Unlock()
		return DRSuccess

	case containsProcess(g.disabling, proc):
		g.disableWaitlist = append(g.disableWaitlist, disableWaiter{process: proc, callback: callback})
		g.mu.Unlock()
		return DRDeferred

	case containsProcess(g.disabled, proc):
		g.mu.Unlock()
		return DRNoOp

	default:
		g.mu.Unlock()
		return DRError
	}
}

// Enable reverses Disable: DISABLING/DISABLED -> ENABLED (spec Group.h
// enable()). Pending disableWaitlist entries for proc are canceled.
func (g *Group) Enable(proc *process.Process) {
	g.mu.Lock()
	var canceled []disableWaiter
	switch {
	case containsProcess(g.disabling, proc):
		g.disabling = removeProcess(g.disabling, proc)
		g.enabled = append(g.enabled, proc)
		g.pq.Insert(proc)
		canceled, g.disableWaitlist = partitionWaitlist(g.disableWaitlist, proc)
	case containsProcess(g.disabled, proc):
		g.disabled = removeProcess(g.disabled, proc)
		g.enabled = append(g.enabled, proc)
		g.pq.Insert(proc)
	}
	g.mu.Unlock()
	for _, w := range canceled {
		w.callback(proc, DRCanceled)
	}
}

// checkDisableWaitlistLocked is called after every session_closed: if proc
// is DISABLING and has drained to zero sessions, move it to disabled and
// resolve every disableWaitlist entry for it with DRSuccess (spec §4.3
// "callback fires when the last session on the disabling process
// closes"). Must be called with g.mu held; returns callbacks to run after
// unlock.
func (g *Group) checkDisableWaitlistLocked(proc *process.Process) []func() {
	if !containsProcess(g.disabling, proc) || proc.Sessions() != 0 {
		return nil
	}
	g.disabling = removeProcess(g.disabling, proc)
	g.disabled = append(g.disabled, proc)

	var fired []func()
	var remaining []disableWaiter
	for _, w := range g.disableWaitlist {
		if w.process == proc {
			cb := w.callback
			fired = append(fired, func() { cb(proc, DRSuccess) })
		} else {
			remaining = append(remaining, w)
		}
	}
	g.disableWaitlist = remaining
	return fired
}

func containsProcess(list []*process.Process, p *process.Process) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}

func partitionWaitlist(list []disableWaiter, proc *process.Process) (matched, remaining []disableWaiter) {
	for _, w := range list {
		if w.process == proc {
			matched = append(matched, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	return matched, remaining
}
