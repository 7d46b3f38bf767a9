//go:build linux

package profiler

import "github.com/prometheus/procfs"

// readLoadAverage reads the 1-minute system load average via procfs,
// the same dependency enterprise/server/util/cpuset used for per-host CPU
// accounting.
func readLoadAverage() (float64, bool) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, false
	}
	loadavg, err := fs.LoadAvg()
	if err != nil {
		return 0, false
	}
	return loadavg.Load1, true
}

// readPressureStall reads memory and I/O pressure-stall "some" averages
// (10s window) from /proc/pressure, degrading gracefully (kernel without
// PSI support, or missing /proc/pressure) by reporting ok=false.
func readPressureStall() (memSome, ioSome float64, ok bool) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, 0, false
	}
	mem, err := fs.PSIStatsForResource("memory")
	if err != nil {
		return 0, 0, false
	}
	io, err := fs.PSIStatsForResource("io")
	if err != nil {
		return 0, 0, false
	}
	if mem.Some == nil || io.Some == nil {
		return 0, 0, false
	}
	return mem.Some.Avg10, io.Some.Avg10, true
}
