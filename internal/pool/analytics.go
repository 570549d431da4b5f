package pool

import (
	"time"

	"github.com/procpool/procpool/internal/group"
	"github.com/procpool/procpool/internal/metrics"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
)

// analyticsInterval is the ~4 second cadence spec §4.5.4 calls for,
// aligned to second boundaries so wakeups across a fleet coalesce.
const analyticsInterval = 4 * time.Second

// analyticsLoop runs the analytics thread (spec §4.5.4): periodically
// collect every known pid under the lock, release it, run the external
// collector, then re-enter the lock to apply per-process metric snapshots
// and queue unresponsive processes for detach.
func (p *Pool) analyticsLoop() {
	defer p.wg.Done()
	// Start the ticker on a whole second so its ticks fall on second
	// boundaries.
	select {
	case <-p.ctx.Done():
		return
	case <-time.After(time.Until(time.Now().Truncate(time.Second).Add(time.Second))):
	}
	ticker := time.NewTicker(analyticsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.analyticsPass()
		}
	}
}

func (p *Pool) analyticsPass() {
	p.mu.Lock()
	collect := p.analyticsFunc
	sink := p.historySink
	groups := make([]*group.Group, 0, len(p.supergroups))
	for _, sg := range p.supergroups {
		groups = append(groups, sg.DefaultGroup())
	}
	waitlistSize := len(p.waitlist)
	metrics.SetProcessCount(p.processCountLocked())
	metrics.SetUtilization(p.utilizationLocked())
	p.mu.Unlock()

	for _, g := range groups {
		waitlistSize += g.GetWaitlistSize()
	}
	metrics.SetGetWaitlistSize(waitlistSize)

	type tracked struct {
		g    *group.Group
		proc *process.Process
	}
	var all []tracked
	pids := make([]int, 0)
	for _, g := range groups {
		enabled, _, _ := g.Processes()
		for _, proc := range enabled {
			pids = append(pids, proc.PID())
			all = append(all, tracked{g: g, proc: proc})
		}
	}

	var procMetrics map[int]process.Metrics
	if collect != nil {
		procMetrics = collect(p.ctx, pids)
	}

	var actions poolopts.Actions
	missing := 0
	for _, t := range all {
		if m, ok := procMetrics[t.proc.PID()]; ok {
			t.proc.SetMetrics(m)
			continue
		}
		if !t.proc.OSProcessExists() {
			missing++
			t.g.Detach(t.proc, &actions)
		}
	}
	actions.Run()

	if sink != nil {
		sink.RecordPoolEvent(p.ctx, "analytics_pass", map[string]any{
			"process_count": len(all),
			"missing_count":  missing,
		})
	}
}
