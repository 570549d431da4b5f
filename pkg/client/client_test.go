package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pool/status" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(StatusResponse{ProcessCount: 2, SupergroupCount: 1, IsSpawning: true})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.ProcessCount != 2 || st.SupergroupCount != 1 || !st.IsSpawning {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "missing bearer token"})
			return
		}
		_ = json.NewEncoder(w).Encode(StatusResponse{})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AuthToken: "tok123"})
	if _, err := c.Status(context.Background()); err != nil {
		t.Fatalf("status: %v", err)
	}
}

func TestClientSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "gupid not found"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	err := c.DetachProcess(context.Background(), "unknown-gupid")
	if err == nil || !strings.Contains(err.Error(), "gupid not found") {
		t.Fatalf("expected API error surfaced, got %v", err)
	}
}

func TestClientInspectReturnsRawXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("secrets") != "1" {
			t.Fatalf("expected secrets=1 query param, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte("<info></info>"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.Inspect(context.Background(), true)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if string(out) != "<info></info>" {
		t.Fatalf("unexpected body: %s", out)
	}
}

func TestClientSetMax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SetMaxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Max != 10 {
			t.Fatalf("expected max=10, got %d", req.Max)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if err := c.SetMax(context.Background(), 10); err != nil {
		t.Fatalf("set max: %v", err)
	}
}
