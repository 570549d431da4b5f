package pool

import (
	"errors"

	"github.com/procpool/procpool/internal/group"
	"github.com/procpool/procpool/internal/metrics"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/supergroup"
)

// ErrNotFound is returned by the detach_*/disable_process family when the
// named gupid, app-group-name, or secret has no match.
var ErrNotFound = errors.New("pool: not found")

// DetachProcess implements detach_process(gupid) (spec §4.6): find the
// process across every group and detach it.
func (p *Pool) DetachProcess(gupid string) error {
	p.mu.Lock()
	var target *process.Process
	var targetGroup *group.Group
	for _, sg := range p.supergroups {
		g := sg.DefaultGroup()
		enabled, disabling, disabled := g.Processes()
		for _, list := range [][]*process.Process{enabled, disabling, disabled} {
			for _, proc := range list {
				if proc.Gupid() == gupid {
					target, targetGroup = proc, g
				}
			}
		}
	}
	p.mu.Unlock()
	if target == nil {
		return ErrNotFound
	}
	var actions poolopts.Actions
	targetGroup.Detach(target, &actions)
	actions.Run()
	p.possiblySpawnMoreProcessesForExistingGroups()
	return nil
}

// DisableProcess implements disable_process(gupid) -> DisableResult (spec
// §4.6).
func (p *Pool) DisableProcess(gupid string, callback func(*process.Process, group.DisableResult)) (group.DisableResult, error) {
	p.mu.Lock()
	var target *process.Process
	var targetGroup *group.Group
	for _, sg := range p.supergroups {
		g := sg.DefaultGroup()
		enabled, disabling, disabled := g.Processes()
		for _, list := range [][]*process.Process{enabled, disabling, disabled} {
			for _, proc := range list {
				if proc.Gupid() == gupid {
					target, targetGroup = proc, g
				}
			}
		}
	}
	p.mu.Unlock()
	if target == nil {
		metrics.ObserveDisable(group.DRError.String())
		return group.DRError, ErrNotFound
	}
	if callback == nil {
		callback = func(*process.Process, group.DisableResult) {}
	}
	result := targetGroup.Disable(target, func(proc *process.Process, r group.DisableResult) {
		metrics.ObserveDisable(r.String())
		callback(proc, r)
	})
	if result != group.DRDeferred {
		metrics.ObserveDisable(result.String())
	}
	return result, nil
}

// DetachSupergroupByName implements detach_supergroup_by_name (spec §4.6).
func (p *Pool) DetachSupergroupByName(name string) error {
	var actions poolopts.Actions
	ok := p.detachSuperGroupByNameLocked(name, &actions, true)
	actions.Run()
	if !ok {
		return ErrNotFound
	}
	p.possiblySpawnMoreProcessesForExistingGroups()
	return nil
}

// DetachSupergroupBySecret implements detach_supergroup_by_secret (spec
// §4.6), used by callers that only hold the opaque secret handed back at
// supergroup creation rather than its app-group-name.
func (p *Pool) DetachSupergroupBySecret(secret string) error {
	p.mu.Lock()
	var name string
	for n, sg := range p.supergroups {
		if sg.Secret() == secret {
			name = n
			break
		}
	}
	p.mu.Unlock()
	if name == "" {
		return ErrNotFound
	}
	return p.DetachSupergroupByName(name)
}

// detachSuperGroupByNameLocked removes name from the supergroup map (if
// present) and destroys it, appending its teardown closures to actions.
// Despite the name it does not require p.mu held by the caller; it takes
// and releases the lock itself, matching the rest of the control surface.
func (p *Pool) detachSuperGroupByNameLocked(name string, actions *poolopts.Actions, removeFromWaitlist bool) bool {
	p.mu.Lock()
	sg, ok := p.supergroups[name]
	if ok {
		delete(p.supergroups, name)
	}
	if removeFromWaitlist {
		var remaining []PoolWaiter
		for _, w := range p.waitlist {
			if w.Options.GroupName() != name {
				remaining = append(remaining, w)
			}
		}
		p.waitlist = remaining
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	sg.Destroy(false, actions, nil)
	return true
}

// RestartGroupsByAppRoot implements restart_groups_by_app_root (spec §4.6):
// every group whose configured AppRoot matches is restarted with its
// current options.
func (p *Pool) RestartGroupsByAppRoot(appRoot string) {
	p.mu.Lock()
	var targets []*group.Group
	for _, sg := range p.supergroups {
		g := sg.DefaultGroup()
		if g.Options().AppRoot == appRoot {
			targets = append(targets, g)
		}
	}
	p.mu.Unlock()

	for _, g := range targets {
		var actions poolopts.Actions
		g.Restart(g.Options(), &actions)
		actions.Run()
	}
}

// RestartSupergroupsByAppRoot implements restart_supergroups_by_app_root
// (spec §4.6): same selection, but restarts through the SuperGroup's own
// RESTARTING/READY transition rather than the Group directly.
func (p *Pool) RestartSupergroupsByAppRoot(appRoot string) {
	p.mu.Lock()
	var targets []*supergroup.SuperGroup
	for _, sg := range p.supergroups {
		if sg.DefaultGroup().Options().AppRoot == appRoot {
			targets = append(targets, sg)
		}
	}
	p.mu.Unlock()

	for _, sg := range targets {
		var actions poolopts.Actions
		sg.Restart(sg.DefaultGroup().Options(), &actions)
		actions.Run()
	}
}
