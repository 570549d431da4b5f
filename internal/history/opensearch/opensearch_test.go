package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/procpool/procpool/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL string
	var receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		receivedBody = body
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"test-index","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")

	event := history.Event{
		Kind:         history.EventProcessSpawned,
		OccurredAt:   time.Now().UTC(),
		AppGroupName: "/apps/a",
		Gupid:        "gupid-1",
		PID:          12345,
		Detail:       map[string]any{"concurrency": 1},
	}
	ctx := context.Background()
	if err := sink.Send(ctx, event); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if receivedMethod != "POST" {
		t.Errorf("expected POST method, got: %s", receivedMethod)
	}

	expectedPath := "/test-index/_doc"
	if receivedURL != expectedPath {
		t.Errorf("expected URL path %s, got: %s", expectedPath, receivedURL)
	}

	var receivedEvent map[string]any
	if err := json.Unmarshal(receivedBody, &receivedEvent); err != nil {
		t.Fatalf("failed to parse received JSON: %v", err)
	}
	if receivedEvent["Kind"] != string(history.EventProcessSpawned) {
		t.Errorf("expected kind %s, got: %v", history.EventProcessSpawned, receivedEvent["Kind"])
	}
	if receivedEvent["Gupid"] != event.Gupid {
		t.Errorf("expected gupid %s, got: %v", event.Gupid, receivedEvent["Gupid"])
	}
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")
	event := history.Event{Kind: history.EventProcessSpawned, OccurredAt: time.Now().UTC(), Gupid: "g"}

	err := sink.Send(context.Background(), event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("expected status error message, got: %v", err)
	}
}

func TestOpenSearchSink_URLConstruction(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		index       string
		expectedURL string
	}{
		{name: "Basic URL", baseURL: "http://localhost:9200", index: "logs", expectedURL: "http://localhost:9200/logs/_doc"},
		{name: "URL with trailing slash", baseURL: "http://localhost:9200/", index: "events", expectedURL: "http://localhost:9200/events/_doc"},
		{name: "HTTPS URL", baseURL: "https://opensearch.example.com", index: "process-history", expectedURL: "https://opensearch.example.com/process-history/_doc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var receivedURL string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedURL = r.URL.String()
				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			sink := New(tt.baseURL, tt.index)
			expectedPath := "/" + tt.index + "/_doc"
			sink.baseURL = server.URL

			event := history.Event{Kind: history.EventProcessSpawned, OccurredAt: time.Now(), Gupid: "g"}
			_ = sink.Send(context.Background(), event)

			if receivedURL != expectedPath {
				t.Errorf("expected URL path %s, got: %s", expectedPath, receivedURL)
			}
		})
	}
}
