package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/procpool/procpool/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container for testing
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start ClickHouse container: %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn := host + ":" + port.Port()
	return clickHouseContainer, dsn
}

// setupSinkWithTable creates a sink and sets up the test table
func setupSinkWithTable(ctx context.Context, t *testing.T, dsn string, tableName string) *Sink {
	t.Helper()

	sink, err := New(dsn, tableName)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	err = sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName+` (
			kind String,
			occurred_at DateTime64(6),
			app_group_name String,
			gupid String,
			pid UInt32,
			detail String
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, gupid)
	`)
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	return sink
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, dsn := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink := setupSinkWithTable(ctx, t, dsn, "process_history")
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

	time.Sleep(100 * time.Millisecond)

	rows := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM process_history WHERE gupid = ?", spawnEvent.Gupid)
	var count uint64
	if err := rows.Scan(&count); err != nil {
		t.Fatalf("failed to query count: %v", err)
	}

	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	_, err := New("invalid-host:9000", "test_table")
	if err == nil {
		t.Error("expected error with invalid connection, got nil")
	}
}

func TestClickHouseSink_Send_ContextCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, dsn := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink := setupSinkWithTable(ctx, t, dsn, "process_history")
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("failed to close sink: %v", err)
		}
	}()

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	event := history.Event{
		Kind:         history.EventProcessSpawned,
		OccurredAt:   time.Now().UTC(),
		AppGroupName: "/apps/cancelled",
		Gupid:        "cancelled-unique-key",
		PID:          99999,
	}

	err := sink.Send(cancelCtx, event)
	if err != nil {
		t.Logf("expected error with cancelled context: %v", err)
	}
}
