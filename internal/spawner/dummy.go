package spawner

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
)

// DummySpawner produces Processes with no backing OS process, for tests
// that exercise pool/group routing without forking anything (spec §9
// "Dummy spawner"). Its Spawn never fails unless configured to.
type DummySpawner struct {
	mu          sync.Mutex
	Concurrency int
	SpawnTime   time.Duration
	FailNext    func() error // if set and returns non-nil, Spawn fails once

	lastUsed time.Time
	counter  atomic.Uint64
}

func NewDummySpawner(concurrency int) *DummySpawner {
	return &DummySpawner{Concurrency: concurrency}
}

func (s *DummySpawner) Cleanable() bool     { return true }
func (s *DummySpawner) Cleanup() error      { return nil }
func (s *DummySpawner) LastUsed() time.Time { s.mu.Lock(); defer s.mu.Unlock(); return s.lastUsed }

func (s *DummySpawner) Spawn(ctx context.Context, opts poolopts.Options) (*process.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.FailNext != nil {
		if err := s.FailNext(); err != nil {
			s.mu.Unlock()
			return nil, poolopts.NewSpawnError(poolopts.AppStartupExplainableError, err.Error())
		}
	}
	s.lastUsed = time.Now()
	s.mu.Unlock()

	if s.SpawnTime > 0 {
		select {
		case <-time.After(s.SpawnTime):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	n := s.counter.Add(1)
	gupid := generateGupidForDummy(n)
	p := process.NewDummy(opts.GroupName(), gupid, s.Concurrency)
	start := time.Now()
	p.SetSpawnTimes(start, start.Add(s.SpawnTime))
	return p, nil
}

func generateGupidForDummy(n uint64) string {
	return "dummy-" + generateAsciiString(6) + "-" + strconv.FormatUint(n, 10)
}
