package supergroup

import (
	"context"
	"testing"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/spawner"
)

func newTestSuperGroup(t *testing.T) *SuperGroup {
	t.Helper()
	opts := poolopts.Options{AppRoot: "/apps/test", MinProcesses: 0, MaxProcesses: 2}
	sp := spawner.NewDummySpawner(1)
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

func TestGetQueuesWhileInitializingThenServes(t *testing.T) {
	sg := newTestSuperGroup(t)

	done := make(chan struct{})
	var gotErr error
	sg.Get(poolopts.Options{}, func(sess *process.Session, err error) {
		gotErr = err
		if sess != nil {
			sess.Close()
		}
		close(done)
	})

	if sg.State() != Initializing {
		t.Fatalf("expected Initializing before MarkReady, got %v", sg.State())
	}

	sg.defaultGroup.Spawn()
	waitFor(t, func() bool { return sg.defaultGroup.EnabledCount() == 1 })
	sg.MarkReady(nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if sg.State() != Ready {
		t.Fatalf("expected Ready after MarkReady, got %v", sg.State())
	}
}

func TestDestroyDetachesEveryProcess(t *testing.T) {
	sg := newTestSuperGroup(t)
	sg.defaultGroup.Spawn()
	waitFor(t, func() bool { return sg.defaultGroup.EnabledCount() == 1 })
	sg.MarkReady(nil)

	var actions poolopts.Actions
	result := make(chan DestroyResult, 1)
	sg.Destroy(false, &actions, func(r DestroyResult) { result <- r })
	actions.Run()

	select {
	case r := <-result:
		if r != DestroySuccess {
			t.Fatalf("expected DestroySuccess, got %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback never fired")
	}
	if sg.State() != Destroyed {
		t.Fatalf("expected Destroyed, got %v", sg.State())
	}
	waitFor(t, func() bool { return sg.defaultGroup.ProcessCount() == 0 })
}
