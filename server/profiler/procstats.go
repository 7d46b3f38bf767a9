package profiler

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// readProcessCPUNanos returns this process's total (user+system) CPU time
// in nanoseconds, used both to seed profileCpuStartNanos at start() and to
// compute the delta returned by ProcessCPUTimeMaybe. A read failure
// (missing /proc, permission) degrades to 0 rather than failing start().
func readProcessCPUNanos() int64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	times, err := p.Times()
	if err != nil {
		return 0
	}
	return int64((times.User + times.System) * 1e9)
}
