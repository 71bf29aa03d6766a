package capture

import (
	"context"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/registry"
)

// Alive reports whether pid refers to a live (non-zombie) process.
func Alive(pid int) bool {
	p, err := gops.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		// No status available usually means the process is gone.
		ok, _ := p.IsRunning()
		return ok
	}
	for _, s := range statuses {
		if s == gops.Zombie {
			return false
		}
	}
	return true
}

// SampleProcess takes one cpu/memory/disk snapshot of pid. Fields the host
// cannot report (e.g. IO counters on some platforms) are left zero rather
// than failing the sample.
func SampleProcess(ctx context.Context, pid int) (registry.ResourceSample, error) {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return registry.ResourceSample{}, apperr.Wrap(apperr.ProcessUnreachable, err, "pid %d", pid)
	}
	smp := registry.ResourceSample{Timestamp: time.Now().UTC()}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		smp.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		smp.MemoryRSS = mem.RSS
		smp.MemoryVMS = mem.VMS
	}
	if io, err := p.IOCountersWithContext(ctx); err == nil && io != nil {
		smp.DiskReadBytes = io.ReadBytes
		smp.DiskWriteBytes = io.WriteBytes
	}
	if th, err := p.NumThreadsWithContext(ctx); err == nil {
		smp.NumThreads = th
	}
	return smp, nil
}
