// Package group implements the per-application process list: spawn policy,
// enable/disable/drain, detach, restart, and the utilization-ordered
// routing queue (spec §3, §4.3). It is the Go analogue of Group.h.
package group

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/spawner"
)

// SpawningState is the Group's own state machine (spec §3).
type SpawningState int

const (
	NotSpawning SpawningState = iota
	Spawning
	Restarting
)

func (s SpawningState) String() string {
	switch s {
	case Spawning:
		return "SPAWNING"
	case Restarting:
		return "RESTARTING"
	default:
		return "NOT_SPAWNING"
	}
}

// GetWaiter is a pending caller queued on get_waitlist (spec §3).
type GetWaiter struct {
	Options  poolopts.Options
	Callback func(*process.Session, error)
}

// disableWaiter is a pending disable() call waiting for its process to
// drain (spec §4.3).
type disableWaiter struct {
	process  *process.Process
	callback func(*process.Process, DisableResult)
}

// Group owns every Process for one application (spec §3). It serializes
// itself via mu; callers (SuperGroup, Pool, tests) release their own locks
// before calling its exported methods.
type Group struct {
	mu sync.Mutex

	name    string
	options poolopts.Options
	sp      spawner.Spawner

	enabled   []*process.Process
	disabling []*process.Process
	disabled  []*process.Process
	detached  []*process.Process

	pq *processPQ

	getWaitlist     []GetWaiter
	disableWaitlist []disableWaiter

	spawningState SpawningState

	restartFilePath      string
	restartFileLastMtime time.Time
	restartDraining      []*process.Process

	unlinker process.SocketUnlinker

	log *slog.Logger
	ctx context.Context

	// onCapacityChanged lets the owning SuperGroup/Pool observe spawn
	// completions/failures that free capacity, to drive re-dispatch passes
	// (spec §4.5.2); nil is fine, it's purely an optimization hook.
	onCapacityChanged func()
}

// New constructs a Group in NOT_SPAWNING state with no processes.
func New(ctx context.Context, name string, opts poolopts.Options, sp spawner.Spawner, log *slog.Logger) *Group {
	if log == nil {
		log = slog.Default()
	}
	return &Group{
		name:    name,
		options: opts.Normalize(),
		sp:      sp,
		pq:      newProcessPQ(),
		log:     log,
		ctx:     ctx,
	}
}

func (g *Group) Name() string { return g.name }

// SetSocketUnlinker registers the unix-domain-socket cleanup hook used when
// a detached process finishes shutting down (spec §3 "releases its listener
// sockets"). Optional; nil means socket files are left on disk.
func (g *Group) SetSocketUnlinker(u process.SocketUnlinker) {
	g.mu.Lock()
	g.unlinker = u
	g.mu.Unlock()
}

// OnCapacityChanged registers a callback invoked (without the Group lock
// held) whenever a spawn completes/fails or a process detaches, so the
// owner can run its own re-dispatch pass.
func (g *Group) OnCapacityChanged(fn func()) {
	g.mu.Lock()
	g.onCapacityChanged = fn
	g.mu.Unlock()
}

// EnabledCount, DisablingCount, DisabledCount mirror list sizes (spec §3,
// testable property 3).
func (g *Group) EnabledCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.enabled)
}

func (g *Group) DisablingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.disabling)
}

func (g *Group) DisabledCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.disabled)
}

// ProcessCount is enabled+disabling+disabled, the quantity the Pool's
// capacity accounting sums across groups (spec §3 global invariants).
func (g *Group) ProcessCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.enabled) + len(g.disabling) + len(g.disabled)
}

// GetWaitlistSize reports the group's own pending-caller count.
func (g *Group) GetWaitlistSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.getWaitlist)
}

func (g *Group) SpawningState() SpawningState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spawningState
}

func (g *Group) IsSpawning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spawningState != NotSpawning
}

// Options returns the current options snapshot.
func (g *Group) Options() poolopts.Options {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.options
}

// MergeOptions updates the subset of options a later get() is allowed to
// refresh (spec: Group.h mergeOptions — max_processes, min_processes,
// max_preloader_idle_time). The spawn method is not changed.
func (g *Group) MergeOptions(other poolopts.Options) {
	g.mu.Lock()
	g.options.MinProcesses = other.MinProcesses
	g.options.MaxProcesses = other.MaxProcesses
	g.options.MaxPreloaderIdle = other.MaxPreloaderIdle
	g.mu.Unlock()
}

// Processes returns a snapshot of every process across all lists, used by
// inspect/to_xml.
func (g *Group) Processes() (enabled, disabling, disabled []*process.Process) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*process.Process(nil), g.enabled...),
		append([]*process.Process(nil), g.disabling...),
		append([]*process.Process(nil), g.disabled...)
}

// maxProcessesForGroup is options.MaxProcesses, already normalized to a
// large sentinel when unset.
func (g *Group) maxProcessesForGroup() int {
	return g.options.MaxProcesses
}

// shouldSpawn implements Group.h's should_spawn(): true iff there's room
// to grow and (there are waiters, or we're under min_processes, or no
// enabled process is idle) (spec §4.3).
func (g *Group) shouldSpawnLocked() bool {
	if len(g.enabled)+len(g.disabling) >= g.maxProcessesForGroup() {
		return false
	}
	if len(g.getWaitlist) > 0 {
		return true
	}
	if len(g.enabled) < g.options.MinProcesses {
		return true
	}
	for _, p := range g.enabled {
		if p.IsIdle() {
			return false
		}
	}
	return true
}

// atFullCapacityLocked reports whether the group has reached
// max_processes (enabled+disabling).
func (g *Group) atFullCapacityLocked() bool {
	return len(g.enabled)+len(g.disabling) >= g.maxProcessesForGroup()
}

// CleanupSpawnerIfIdle tears down the group's spawner (its preloader, for
// SmartSpawner) if it reports itself cleanable and has been idle at least
// idleTime (spec §4.5.3 "if the Group's spawner is cleanable() and
// now - spawner.last_used() >= preloader_idle_time, clean it up").
func (g *Group) CleanupSpawnerIfIdle(idleTime time.Duration) error {
	g.mu.Lock()
	sp := g.sp
	g.mu.Unlock()
	if sp == nil || !sp.Cleanable() {
		return nil
	}
	if time.Since(sp.LastUsed()) < idleTime {
		return nil
	}
	return sp.Cleanup()
}

func removeProcess(list []*process.Process, p *process.Process) []*process.Process {
	for i, q := range list {
		if q == p {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
