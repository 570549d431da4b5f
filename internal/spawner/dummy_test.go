package spawner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
)

func TestDummySpawnerProducesSessionCapableProcess(t *testing.T) {
	s := NewDummySpawner(4)
	p, err := s.Spawn(context.Background(), poolopts.Options{AppRoot: "/apps/foo"}.Normalize())
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if !p.IsDummy() {
		t.Fatalf("expected dummy process")
	}
	if p.GroupName() != "/apps/foo" {
		t.Fatalf("GroupName = %q", p.GroupName())
	}
	sess, err := p.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()
	if p.Sessions() != 1 {
		t.Fatalf("Sessions() = %d, want 1", p.Sessions())
	}
}

func TestDummySpawnerFailNext(t *testing.T) {
	wantErr := errors.New("boom")
	s := NewDummySpawner(1)
	called := false
	s.FailNext = func() error {
		if called {
			return nil
		}
		called = true
		return wantErr
	}
	if _, err := s.Spawn(context.Background(), poolopts.Options{AppRoot: "/a"}.Normalize()); err == nil {
		t.Fatalf("expected error from first Spawn")
	}
	p, err := s.Spawn(context.Background(), poolopts.Options{AppRoot: "/a"}.Normalize())
	if err != nil {
		t.Fatalf("second Spawn: %v", err)
	}
	if p == nil {
		t.Fatalf("expected process on retry")
	}
}

func TestDummySpawnerHonorsContextCancellation(t *testing.T) {
	s := NewDummySpawner(1)
	s.SpawnTime = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Spawn(ctx, poolopts.Options{AppRoot: "/a"}.Normalize()); err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestGupidFormat(t *testing.T) {
	g := generateGupid()
	if len(g) < 13 {
		t.Fatalf("gupid too short: %q", g)
	}
}

func TestConnectPasswordLength(t *testing.T) {
	if len(generateConnectPassword()) != 43 {
		t.Fatalf("connect password length = %d, want 43", len(generateConnectPassword()))
	}
}
