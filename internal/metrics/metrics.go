// Package metrics exposes the pool's Prometheus collectors (SPEC_FULL §3
// "Metrics"), mirroring the teacher's internal/metrics package shape but
// scoped to pool concepts instead of per-name process supervision.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	regOK atomic.Bool

	processCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pool",
			Name:      "process_count",
			Help:      "Current number of processes tracked by the pool.",
		},
	)

	utilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pool",
			Name:      "utilization",
			Help:      "Pool utilization: sum of per-group utilization across all supergroups.",
		},
	)

	getWaitlistSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pool",
			Name:      "get_waitlist_size",
			Help:      "Number of get() callers currently waiting for a session.",
		},
	)

	spawnTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pool",
			Name:      "spawn_total",
			Help:      "Number of spawn attempts by result.",
		}, []string{"result"},
	)

	spawnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pool",
			Name:      "spawn_duration_seconds",
			Help:      "Observed spawn negotiation duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"app_group_name"},
	)

	gcEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pool",
			Name:      "gc_evictions_total",
			Help:      "Number of idle processes evicted by the GC thread.",
		},
	)

	disableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pool",
			Name:      "disable_total",
			Help:      "Number of disable_process calls by result.",
		}, []string{"result"},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// subsequent calls after a success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	collectors := []prometheus.Collector{
		processCount, utilization, getWaitlistSize,
		spawnTotal, spawnDuration, gcEvictionsTotal, disableTotal,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	regOK.Store(true)
	return nil
}

// SetProcessCount records the pool's current process count.
func SetProcessCount(n int) { processCount.Set(float64(n)) }

// SetUtilization records the pool's current total utilization.
func SetUtilization(n int) { utilization.Set(float64(n)) }

// SetGetWaitlistSize records the current number of blocked get() callers.
func SetGetWaitlistSize(n int) { getWaitlistSize.Set(float64(n)) }

// ObserveSpawn records a spawn attempt's result and, on success, its duration.
func ObserveSpawn(appGroupName, result string, seconds float64) {
	spawnTotal.WithLabelValues(result).Inc()
	if result == "success" {
		spawnDuration.WithLabelValues(appGroupName).Observe(seconds)
	}
}

// IncGCEvictions records one idle-process eviction.
func IncGCEvictions() { gcEvictionsTotal.Inc() }

// ObserveDisable records a disable_process call's result.
func ObserveDisable(result string) { disableTotal.WithLabelValues(result).Inc() }
