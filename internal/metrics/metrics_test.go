package metrics

import (
	"context"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndHelpersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	SetProcessCount(3)
	SetUtilization(2)
	SetGetWaitlistSize(1)
	ObserveSpawn("/apps/a", "success", 0.5)
	ObserveSpawn("/apps/a", "failure", 0)
	IncGCEvictions()
	ObserveDisable("success")

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mf) == 0 {
		t.Fatal("expected at least one metric family after recording")
	}
}

func TestRegisterRejectsForeignCollectorConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	dup := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "pool", Name: "process_count"})
	if err := reg.Register(dup); err != nil {
		t.Fatalf("seed register: %v", err)
	}
	regOK.Store(false)
	if err := Register(reg); err == nil {
		t.Fatal("expected conflict error when pool_process_count is already registered by a different collector")
	}
	regOK.Store(false)
}

func TestCollectProcessMetricsSelfPID(t *testing.T) {
	pid := os.Getpid()
	out := CollectProcessMetrics(context.Background(), []int{pid})
	m, ok := out[pid]
	if !ok {
		t.Fatalf("expected metrics for current process pid %d", pid)
	}
	if m.ObservedAt.IsZero() {
		t.Fatal("expected ObservedAt to be set")
	}
}

func TestCollectProcessMetricsSkipsDeadPID(t *testing.T) {
	out := CollectProcessMetrics(context.Background(), []int{999999})
	if _, ok := out[999999]; ok {
		t.Fatal("expected dead pid to be omitted from result")
	}
}
