package group

import (
	"context"

	"github.com/procpool/procpool/internal/process"
)

// PollOOBW checks every enabled process for a pending out-of-band work
// request and, for each one found, disables it, waits for it to drain, lets
// it run its OOBW (by invoking the onOOBWReady callback), and re-enables it (spec §4.3 "out-of-band
// work"). Meant to be called periodically from Pool's GC loop; onOOBWReady
// is invoked without any lock held so it may safely send the worker its
// oobw go-ahead and block until it finishes.
func (g *Group) PollOOBW(ctx context.Context, onOOBWReady func(*process.Process)) {
	g.mu.Lock()
	var candidates []*process.Process
	for _, p := range g.enabled {
		if p.ConsumeOOBWRequest() {
			candidates = append(candidates, p)
		}
	}
	g.mu.Unlock()

	for _, p := range candidates {
		g.runOOBW(ctx, p, onOOBWReady)
	}
}

// runOOBW disables p, blocks until it drains, invokes onOOBWReady, then
// re-enables p (original_source Group.h's oobw poll callback chain,
// simplified to synchronous blocking since Go has no need for the
// libev-driven continuation style the original uses).
func (g *Group) runOOBW(ctx context.Context, p *process.Process, onOOBWReady func(*process.Process)) {
	done := make(chan DisableResult, 1)
	result := g.Disable(p, func(_ *process.Process, r DisableResult) { done <- r })

	switch result {
	case DRSuccess:
		// already idle, nothing to wait for
	case DRDeferred:
		select {
		case <-done:
		case <-ctx.Done():
			g.Enable(p)
			return
		}
	default:
		return
	}

	if onOOBWReady != nil {
		onOOBWReady(p)
	}
	g.Enable(p)
}
