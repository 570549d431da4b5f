package group

import (
	"context"
	"testing"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/spawner"
)

func newTestGroup(t *testing.T, minProcs, maxProcs, concurrency int) *Group {
	t.Helper()
	opts := poolopts.Options{
		AppRoot:      "/apps/test",
		MinProcesses: minProcs,
		MaxProcesses: maxProcs,
	}
	sp := spawner.NewDummySpawner(concurrency)
	return New(context.Background(), opts.GroupName(), opts, sp, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestGetSpawnsAndServesSession(t *testing.T) {
	g := newTestGroup(t, 0, 2, 1)

	done := make(chan struct{})
	var gotErr error
	_, queued := g.Get(GetWaiter{Callback: func(sess *process.Session, err error) {
		gotErr = err
		if sess != nil {
			sess.Close()
		}
		close(done)
	}})
	if !queued {
		t.Fatalf("expected first Get to queue while group has no processes")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	waitFor(t, func() bool { return g.EnabledCount() == 1 })
}

func TestEmptyGroupNotAtFullCapacity(t *testing.T) {
	g := newTestGroup(t, 0, 1, 1)
	g.mu.Lock()
	atMax := g.atFullCapacityLocked()
	g.mu.Unlock()
	if atMax {
		t.Fatal("empty group should not report full capacity")
	}
}

func TestDisableDefersUntilDrainWhenLastEnabled(t *testing.T) {
	g := newTestGroup(t, 0, 2, 1)
	g.Spawn()
	waitFor(t, func() bool { return g.EnabledCount() == 1 })

	enabled, _, _ := g.Processes()
	proc := enabled[0]

	sess, err := proc.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	resultCh := make(chan DisableResult, 1)
	result := g.Disable(proc, func(_ *process.Process, r DisableResult) { resultCh <- r })
	if result != DRDeferred {
		t.Fatalf("expected DRDeferred disabling the last enabled process with an open session, got %v", result)
	}
	if g.DisablingCount() != 1 {
		t.Fatalf("expected process moved to disabling, got disabling=%d", g.DisablingCount())
	}

	sess.Close()

	select {
	case r := <-resultCh:
		if r != DRSuccess {
			t.Fatalf("expected DRSuccess after drain, got %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disable callback never fired")
	}
	waitFor(t, func() bool { return g.DisabledCount() == 1 })
}

func TestDisableUnknownProcessReturnsError(t *testing.T) {
	g1 := newTestGroup(t, 0, 2, 1)
	g2 := newTestGroup(t, 0, 2, 1)
	g2.Spawn()
	waitFor(t, func() bool { return g2.EnabledCount() == 1 })
	enabled, _, _ := g2.Processes()

	result := g1.Disable(enabled[0], func(*process.Process, DisableResult) {})
	if result != DRError {
		t.Fatalf("expected DRError for a process foreign to this group, got %v", result)
	}
}

func TestEnableCancelsPendingDisable(t *testing.T) {
	g := newTestGroup(t, 0, 2, 1)
	g.Spawn()
	waitFor(t, func() bool { return g.EnabledCount() == 1 })
	enabled, _, _ := g.Processes()
	proc := enabled[0]

	sess, err := proc.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()

	resultCh := make(chan DisableResult, 1)
	if r := g.Disable(proc, func(_ *process.Process, res DisableResult) { resultCh <- res }); r != DRDeferred {
		t.Fatalf("expected DRDeferred, got %v", r)
	}

	g.Enable(proc)

	select {
	case r := <-resultCh:
		if r != DRCanceled {
			t.Fatalf("expected DRCanceled after Enable reverses a pending Disable, got %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disable callback never fired after Enable")
	}
	if g.EnabledCount() != 1 {
		t.Fatalf("expected process restored to enabled, got %d", g.EnabledCount())
	}
}

func TestRestartDrainsOldGenerationAndSpawnsNew(t *testing.T) {
	g := newTestGroup(t, 1, 2, 1)
	g.Spawn()
	waitFor(t, func() bool { return g.EnabledCount() == 1 })

	var actions poolopts.Actions
	g.Restart(g.Options(), &actions)
	actions.Run()

	waitFor(t, func() bool { return g.EnabledCount() == 1 })
}
