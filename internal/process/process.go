// Package process models one worker process: its identity, listener
// sockets, session accounting, and lifecycle state machine (spec §3, §4.1).
// It has no notion of how a worker was forked — that belongs to
// internal/spawner — only of what the pool needs to route to and
// eventually shut down.
package process

import (
	"sync"
	"time"
)

// Process is one worker of some Group. All mutable fields are guarded by mu;
// exported accessor methods take the lock internally, matching the teacher's
// "locking kept within methods" discipline.
type Process struct {
	mu sync.Mutex

	pid             int
	gupid           string
	connectPassword string
	dummy           bool

	groupName string // non-owning back-reference, lookup only (spec §3 Ownership)

	sockets     []*Socket
	sessionPQ   socketHeap
	socketSeq   int

	sessions  int
	processed uint64
	lastUsed  time.Time

	spawnStartTime time.Time
	spawnEndTime   time.Time

	lifeStatus LifeStatus
	enablement Enablement

	oobwRequested bool

	liveChecker LiveChecker

	metrics Metrics

	onSessionClosed func(*Process)

	admin AdminCloser
}

// LiveChecker abstracts "is the OS process for this pid still around".
// Implementations must memoize a negative result: once a pid is observed
// gone, later calls must not re-signal the (possibly recycled) pid
// (spec §4.1 os_process_exists).
type LiveChecker interface {
	Exists(pid int) bool
}

// Metrics is the analytics-thread-populated snapshot (SPEC_FULL §4,
// grounded on Process.h's cpu/rss/real_memory fields).
type Metrics struct {
	CPU        int
	RSSKB      int64
	RealMemKB  int64
	ObservedAt time.Time
}

// New constructs a Process in the ALIVE/ENABLED state for groupName, using
// the identity and sockets negotiated by a Spawner.
func New(groupName, gupid, connectPassword string, pid int, sockets []*Socket, liveChecker LiveChecker) *Process {
	p := &Process{
		groupName:       groupName,
		gupid:           gupid,
		connectPassword: connectPassword,
		pid:             pid,
		sockets:         sockets,
		lifeStatus:      Alive,
		enablement:      Enabled,
		lastUsed:        time.Now(),
		liveChecker:     liveChecker,
	}
	for _, s := range sockets {
		if s.Protocol.IsSessionProtocol() {
			s.seq = p.socketSeq
			p.socketSeq++
			p.sessionPQ = append(p.sessionPQ, s)
		}
	}
	for i, s := range p.sessionPQ {
		s.heapIndex = i
	}
	return p
}

// NewDummy constructs a Process with no real OS process, used by the
// DummySpawner in tests (spec §9 "Dummy spawner").
func NewDummy(groupName, gupid string, concurrency int) *Process {
	sock := &Socket{Name: "main", Address: "dummy:", Protocol: ProtocolSession, Concurrency: concurrency}
	p := New(groupName, gupid, "dummy-password", -1, []*Socket{sock}, AlwaysAlive{})
	p.dummy = true
	return p
}

func (p *Process) GroupName() string { return p.groupName }
func (p *Process) PID() int          { p.mu.Lock(); defer p.mu.Unlock(); return p.pid }
func (p *Process) Gupid() string     { return p.gupid }
func (p *Process) IsDummy() bool     { return p.dummy }

func (p *Process) ConnectPassword() string { return p.connectPassword }

// Concurrency is the sum of session-socket concurrencies, or 0 (unlimited)
// if any session socket is unlimited (spec §3).
func (p *Process) Concurrency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, s := range p.sessionPQ {
		if s.Concurrency == 0 {
			return 0
		}
		total += s.Concurrency
	}
	return total
}

// Utilization is the process-level routing key (spec §4.1): derived from
// the same formula as Socket.Utilization but over the process's total
// sessions/concurrency.
func (p *Process) Utilization() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return utilization(p.sessions, p.concurrencyLocked())
}

func (p *Process) concurrencyLocked() int {
	total := 0
	for _, s := range p.sessionPQ {
		if s.Concurrency == 0 {
			return 0
		}
		total += s.Concurrency
	}
	return total
}

// Sessions returns the number of currently open sessions.
func (p *Process) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}

// Processed returns the cumulative count of sessions ever routed here.
func (p *Process) Processed() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

// LastUsed returns the timestamp of the last session open/close.
func (p *Process) LastUsed() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsed
}

// IsIdle reports utilization()==0, the definition used by Pool eviction
// and GC (spec §4.5.1, §4.5.3).
func (p *Process) IsIdle() bool {
	return p.Sessions() == 0
}

// AtFullUtilization reports whether every session socket is saturated,
// i.e. no new session can be routed here without spawning more capacity
// elsewhere (spec §4.3 routing algorithm step 1).
func (p *Process) AtFullUtilization() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessionPQ) == 0 {
		return true
	}
	return !p.sessionPQ[0].HasCapacity()
}

func (p *Process) LifeStatus() LifeStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifeStatus
}

func (p *Process) Enablement() Enablement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enablement
}

func (p *Process) SetEnablement(e Enablement) {
	p.mu.Lock()
	p.enablement = e
	p.mu.Unlock()
}

func (p *Process) SetSpawnTimes(start, end time.Time) {
	p.mu.Lock()
	p.spawnStartTime, p.spawnEndTime = start, end
	p.mu.Unlock()
}

func (p *Process) SpawnTimes() (start, end time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawnStartTime, p.spawnEndTime
}

func (p *Process) SetMetrics(m Metrics) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
}

func (p *Process) SnapshotMetrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Sockets returns a copy of the socket list for inspection/XML output.
func (p *Process) Sockets() []Socket {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Socket, len(p.sockets))
	for i, s := range p.sockets {
		out[i] = *s
	}
	return out
}

// RequestOOBW marks that this process has signaled a need for out-of-band
// work over its admin channel (SPEC_FULL §4, Group.h requestOOBW).
func (p *Process) RequestOOBW() {
	p.mu.Lock()
	p.oobwRequested = true
	p.mu.Unlock()
}

// ConsumeOOBWRequest reports and clears a pending out-of-band work request.
func (p *Process) ConsumeOOBWRequest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oobwRequested {
		p.oobwRequested = false
		return true
	}
	return false
}

// AlwaysAlive is a LiveChecker for dummy/test processes that never die
// until explicitly shut down.
type AlwaysAlive struct{}

func (AlwaysAlive) Exists(int) bool { return true }
