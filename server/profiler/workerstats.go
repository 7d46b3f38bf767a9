package profiler

import (
	"github.com/mitchellh/go-ps"
	"github.com/shirou/gopsutil/v3/process"
)

// defaultWorkerProcessMetricsCollector sums memory and CPU time across the
// process tree rooted at rootPID, the same tree-walk
// enterprise/server/util/procstats performed for persistent-worker
// accounting: enumerate all processes via go-ps, keep only rootPID and its
// descendants, then read each one's resource usage via gopsutil.
type defaultWorkerProcessMetricsCollector struct {
	rootPID int
}

func NewDefaultWorkerProcessMetricsCollector(rootPID int) WorkerProcessMetricsCollector {
	return &defaultWorkerProcessMetricsCollector{rootPID: rootPID}
}

func (c *defaultWorkerProcessMetricsCollector) CollectWorkerMetrics() (memoryBytes float64, cpuNanos float64, ok bool) {
	procs, err := ps.Processes()
	if err != nil {
		return 0, 0, false
	}
	descendants := pidsInTree(procs, c.rootPID)
	if len(descendants) == 0 {
		return 0, 0, false
	}

	var totalMem, totalCPU float64
	found := false
	for _, pid := range descendants {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			continue
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			totalMem += float64(mem.RSS)
			found = true
		}
		if times, err := p.Times(); err == nil {
			totalCPU += (times.User + times.System) * 1e9
			found = true
		}
	}
	return totalMem, totalCPU, found
}

// pidsInTree returns rootPID and every pid transitively parented by it.
func pidsInTree(procs []ps.Process, rootPID int) []int {
	children := make(map[int][]int)
	for _, p := range procs {
		children[p.PPid()] = append(children[p.PPid()], p.Pid())
	}

	var result []int
	queue := []int{rootPID}
	seen := map[int]bool{rootPID: true}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		result = append(result, pid)
		for _, child := range children[pid] {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return result
}
