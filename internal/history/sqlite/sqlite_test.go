package sqlite

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/procpool/procpool/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := tempDir + "/test.db"

	sink, err := New("file:" + dbPath)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("failed to close sink: %v", err)
		}
		_ = os.Remove(dbPath)
	}()

	ctx := context.Background()

	spawnEvent := history.Event{
		Kind:         history.EventProcessSpawned,
		OccurredAt:   time.Now().UTC(),
		AppGroupName: "/apps/a",
		Gupid:        "test-unique-key",
		PID:          12345,
	}
	if err := sink.Send(ctx, spawnEvent); err != nil {
		t.Fatalf("failed to send spawn event: %v", err)
	}

	detachEvent := history.Event{
		Kind:         history.EventProcessDetached,
		OccurredAt:   time.Now().UTC(),
		AppGroupName: "/apps/a",
		Gupid:        "test-unique-key",
		PID:          12345,
	}
	if err := sink.Send(ctx, detachEvent); err != nil {
		t.Fatalf("failed to send detach event: %v", err)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create in-memory sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()

	event := history.Event{
		Kind:         history.EventProcessSpawned,
		OccurredAt:   time.Now().UTC(),
		AppGroupName: "/apps/mem",
		Gupid:        "mem-test-unique-key",
		PID:          54321,
	}
	if err := sink.Send(ctx, event); err != nil {
		t.Fatalf("failed to send event: %v", err)
	}
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("failed to close sink: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := history.Event{
		Kind:         history.EventProcessSpawned,
		OccurredAt:   time.Now().UTC(),
		AppGroupName: "/apps/cancelled",
		Gupid:        "cancelled-unique-key",
		PID:          99999,
	}

	err = sink.Send(ctx, event)
	if err != nil {
		t.Logf("expected error with cancelled context: %v", err)
	}
}
