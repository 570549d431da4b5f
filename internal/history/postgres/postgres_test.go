package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/procpool/procpool/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("failed to close sink: %v", err)
		}
	}()

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

	rows, err := sink.db.QueryContext(ctx, "SELECT COUNT(*) FROM process_history WHERE gupid = $1", spawnEvent.Gupid)
	if err != nil {
		t.Fatalf("failed to query process_history: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			t.Fatalf("failed to scan count: %v", err)
		}
	}

	if count != 2 {
		t.Errorf("expected 2 events in history, got %d", count)
	}
}
