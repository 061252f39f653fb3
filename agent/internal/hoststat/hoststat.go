// Package hoststat collects host resource metrics for the agent's
// heartbeat payload. The teacher's equivalent (agent/internal/metrics) was
// a stub that always returned zero values despite importing gopsutil; this
// package actually calls it.
package hoststat

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sample is a point-in-time read of host resource usage.
type Sample struct {
	CPUPercent float64
	MemPercent float64
	LoadAvg1   float64
}

// sampleWindow is how long cpu.PercentWithContext averages over. Kept
// short because Collect runs once per heartbeat interval, not continuously.
const sampleWindow = 200 * time.Millisecond

// Collect samples CPU, memory, and 1-minute load average. Any single
// collector failing (e.g. load average is unsupported on the platform)
// leaves that field zero rather than failing the whole heartbeat.
func Collect(ctx context.Context) Sample {
	var s Sample

	if pcts, err := cpu.PercentWithContext(ctx, sampleWindow, false); err == nil && len(pcts) > 0 {
		s.CPUPercent = pcts[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemPercent = vm.UsedPercent
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.LoadAvg1 = avg.Load1
	}

	return s
}
