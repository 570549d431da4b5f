package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	procpoolprocess "github.com/procpool/procpool/internal/process"
)

// CollectProcessMetrics samples CPU/memory usage for pids via gopsutil and
// matches the func(ctx, pids) map[int]process.Metrics shape
// Pool.SetAnalyticsCollector expects (SPEC_FULL §4 "analytics thread").
// Pids whose OS process has disappeared are simply omitted from the result;
// the pool's analytics pass treats a missing pid as the process having died.
func CollectProcessMetrics(_ context.Context, pids []int) map[int]procpoolprocess.Metrics {
	out := make(map[int]procpoolprocess.Metrics, len(pids))
	now := time.Now()
	for _, pid := range pids {
		proc, err := process.NewProcess(int32(pid))
		if err != nil {
			continue
		}
		cpuPercent, err := proc.CPUPercent()
		if err != nil {
			continue
		}
		memInfo, err := proc.MemoryInfo()
		if err != nil {
			continue
		}
		out[pid] = procpoolprocess.Metrics{
			CPU:        int(cpuPercent),
			RSSKB:      int64(memInfo.RSS / 1024),
			RealMemKB:  int64(memInfo.RSS / 1024),
			ObservedAt: now,
		}
	}
	return out
}
