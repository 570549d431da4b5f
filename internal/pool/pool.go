// Package pool implements the top-level admission, capacity, and
// background-maintenance core (spec §4.5, §4.6): the supergroup map, pool
// wait list, garbage collector, and analytics loop. It is the Go analogue
// of Pool.h, built the way the teacher's internal/manager.Manager owns one
// struct behind a single mutex with background reconciler goroutines.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/spawner"
	"github.com/procpool/procpool/internal/supergroup"
)

// PoolWaiter is a caller queued on the Pool's own wait list because no
// supergroup existed for it yet and the pool was at full capacity (spec
// §4.5.1 step 3b).
type PoolWaiter struct {
	Options  poolopts.Options
	Callback func(*process.Session, error)
}

// LifeStatus is the Pool's own top-level state, mirroring Process's and
// Group's ALIVE/SHUTTING_DOWN vocabulary at the outermost scope.
type LifeStatus int

const (
	PoolAlive LifeStatus = iota
	PoolShuttingDown
	PoolShutDown
)

// Pool is the top-level core object: one supergroup map behind one mutex,
// plus background GC and analytics loops (spec §3, §4.5). All exported
// methods acquire mu internally and never call external code while holding
// it (spec §5 "post-lock actions").
type Pool struct {
	mu sync.Mutex

	supergroups map[string]*supergroup.SuperGroup
	waitlist    []PoolWaiter

	max         int
	maxIdleTime time.Duration
	lifeStatus  LifeStatus

	factory *spawner.Factory
	log     *slog.Logger

	gcWake        chan struct{}
	analyticsFunc func(ctx context.Context, pids []int) map[int]process.Metrics
	historySink   HistorySink

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

// HistorySink receives lifecycle summaries from the analytics loop
// (SPEC_FULL §3 "Pool event history/audit sink"); kept as a narrow
// pool-local interface rather than importing internal/history directly so
// the pool core has no dependency on a specific backend's wire format.
type HistorySink interface {
	RecordPoolEvent(ctx context.Context, kind string, detail map[string]any)
}

// New constructs a Pool with the given admission cap, using factory to
// build a Spawner for each SuperGroup it creates.
func New(max int, maxIdleTime time.Duration, factory *spawner.Factory, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		supergroups: make(map[string]*supergroup.SuperGroup),
		max:         max,
		maxIdleTime: maxIdleTime,
		factory:     factory,
		log:         log,
		gcWake:      make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
	return p
}

// SetHistorySink installs (or clears, with nil) the analytics loop's
// lifecycle summary destination.
func (p *Pool) SetHistorySink(sink HistorySink) {
	p.mu.Lock()
	p.historySink = sink
	p.mu.Unlock()
}

// SetAnalyticsCollector installs the external metrics collector function
// the analytics loop calls outside the lock (spec §4.5.4). Tests may omit
// this; the loop simply skips metric updates when unset.
func (p *Pool) SetAnalyticsCollector(fn func(ctx context.Context, pids []int) map[int]process.Metrics) {
	p.mu.Lock()
	p.analyticsFunc = fn
	p.mu.Unlock()
}

// Start launches the background GC and analytics loops (spec §4.5.3,
// §4.5.4). Safe to call once; a second call is a no-op.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(2)
		go p.gcLoop()
		go p.analyticsLoop()
	})
}

// Stop shuts down the background loops and detaches every supergroup
// (spec §3 destruction order: Pool -> SuperGroup -> Group -> Process).
func (p *Pool) Stop() {
	p.mu.Lock()
	p.lifeStatus = PoolShuttingDown
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	names := make([]string, 0, len(p.supergroups))
	for name := range p.supergroups {
		names = append(names, name)
	}
	p.mu.Unlock()

	for _, name := range names {
		var actions poolopts.Actions
		p.detachSuperGroupByNameLocked(name, &actions, false)
		actions.Run()
	}

	p.mu.Lock()
	p.lifeStatus = PoolShutDown
	p.mu.Unlock()
}

func (p *Pool) GetProcessCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, sg := range p.supergroups {
		total += sg.DefaultGroup().ProcessCount()
	}
	return total
}

func (p *Pool) GetSupergroupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.supergroups)
}

func (p *Pool) IsSpawning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sg := range p.supergroups {
		if sg.DefaultGroup().IsSpawning() {
			return true
		}
	}
	return false
}

// SetMax implements set_max (spec §4.6): raising the cap triggers a
// re-dispatch pass; lowering it only records the new value.
func (p *Pool) SetMax(n int) {
	p.mu.Lock()
	grew := n > p.max
	p.max = n
	p.mu.Unlock()
	if grew {
		var actions poolopts.Actions
		p.assignSessionsToGetWaiters(&actions)
		actions.Run()
		p.possiblySpawnMoreProcessesForExistingGroups()
	}
}

// SetMaxIdleTime implements set_max_idle_time, waking the GC loop so the
// new deadline takes effect without waiting for its current timer.
func (p *Pool) SetMaxIdleTime(d time.Duration) {
	p.mu.Lock()
	p.maxIdleTime = d
	p.mu.Unlock()
	p.wakeGC()
}

func (p *Pool) wakeGC() {
	select {
	case p.gcWake <- struct{}{}:
	default:
	}
}

func (p *Pool) utilizationLocked() int {
	total := 0
	for _, sg := range p.supergroups {
		count, _ := sg.Utilization()
		total += count
	}
	return total
}
