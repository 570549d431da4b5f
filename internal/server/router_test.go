package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/procpool/procpool/internal/pool"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/spawner"
)

func newTestRouterPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.New(4, time.Hour, &spawner.Factory{}, nil)
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func getSession(t *testing.T, p *pool.Pool, appRoot string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sess, err := p.Get(ctx, poolopts.Options{AppRoot: appRoot, NoOp: true, MaxProcesses: 2})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(sess.Close)
}

func TestRouterStatusAndInfo(t *testing.T) {
	p := newTestRouterPool(t)
	getSession(t, p, "/apps/a")

	r := NewRouter(p, "", "")
	h := r.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/pool/status", nil))
	if rec.Code != 200 {
		t.Fatalf("status code = %d body=%s", rec.Code, rec.Body.String())
	}
	var st statusResp
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.ProcessCount != 1 || st.SupergroupCount != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/pool/info", nil))
	if rec.Code != 200 {
		t.Fatalf("info status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty XML body")
	}
}

func TestRouterRequiresBearerTokenWhenConfigured(t *testing.T) {
	p := newTestRouterPool(t)
	r := NewRouter(p, "", "s3cret")
	h := r.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/pool/status", nil))
	if rec.Code != 401 {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/pool/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200 with correct token, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/pool/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestRouterDetachProcess(t *testing.T) {
	p := newTestRouterPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sess, err := p.Get(ctx, poolopts.Options{AppRoot: "/apps/a", NoOp: true, MaxProcesses: 2})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	gupid := sess.Process().Gupid()
	sess.Close()

	r := NewRouter(p, "", "")
	h := r.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/pool/detach_process?gupid="+gupid, nil))
	if rec.Code != 200 {
		t.Fatalf("detach status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/pool/detach_process?gupid=nonexistent", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 for unknown gupid, got %d", rec.Code)
	}
}

func TestRouterSetMaxValidatesBody(t *testing.T) {
	p := newTestRouterPool(t)
	r := NewRouter(p, "/api", "")
	h := r.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/pool/set_max", nil)
	h.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("expected 400 with no body, got %d", rec.Code)
	}
}

func TestRouterBasePathPrefixesRoutes(t *testing.T) {
	p := newTestRouterPool(t)
	r := NewRouter(p, "/v1", "")
	h := r.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/pool/status", nil))
	if rec.Code != 200 {
		t.Fatalf("expected base-path-prefixed route to work, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected /metrics to stay unprefixed, got %d", rec.Code)
	}
}
