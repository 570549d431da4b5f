// Package history exports pool lifecycle events (process spawned/detached,
// group restarted, analytics passes) to an external sink for
// statistics/audit systems, independent of the pool's own in-memory state.
package history

import (
	"context"
	"log/slog"
	"time"
)

// EventKind is the kind of lifecycle occurrence being recorded.
type EventKind string

const (
	EventProcessSpawned  EventKind = "process_spawned"
	EventProcessDetached EventKind = "process_detached"
	EventGroupRestarted  EventKind = "group_restarted"
	EventAnalyticsPass   EventKind = "analytics_pass"
)

// Event is one lifecycle occurrence handed to a Sink. AppGroupName/Gupid/PID
// are pulled out of Detail when present so SQL/columnar sinks can index on
// them directly; Detail always carries the full payload too.
type Event struct {
	Kind         EventKind
	OccurredAt   time.Time
	AppGroupName string
	Gupid        string
	PID          int
	Detail       map[string]any
}

// Sink is a destination for lifecycle events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Dispatcher adapts a Sink to the pool's narrow HistorySink interface
// (RecordPoolEvent has no error return; history export is best-effort and
// must never slow down or fail pool operations). Send failures are logged
// and dropped rather than propagated.
type Dispatcher struct {
	Sink Sink
	Log  *slog.Logger
}

func (d *Dispatcher) RecordPoolEvent(ctx context.Context, kind string, detail map[string]any) {
	if d == nil || d.Sink == nil {
		return
	}
	e := Event{
		Kind:       EventKind(kind),
		OccurredAt: time.Now(),
		Detail:     detail,
	}
	if v, ok := detail["app_group_name"].(string); ok {
		e.AppGroupName = v
	}
	if v, ok := detail["gupid"].(string); ok {
		e.Gupid = v
	}
	if v, ok := detail["pid"].(int); ok {
		e.PID = v
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	if err := d.Sink.Send(ctx, e); err != nil {
		log.Warn("history sink send failed", "kind", kind, "err", err)
	}
}
