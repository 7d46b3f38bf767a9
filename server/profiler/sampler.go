package profiler

import (
	"os"
	"time"

	"github.com/buildbuddy-io/buildprofiler/server/metrics"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// samplerInterval is how often the resource sampler ticks. Implementation
// defined but stable across runs, per spec §4.7.
const samplerInterval = time.Second

// SamplerConfig configures a resource Sampler. Every Collect* flag gates
// one optional series; a nil collaborator paired with its flag simply
// omits that series rather than erroring.
type SamplerConfig struct {
	Clock                     Clock
	Writer                    *Writer
	ProfileStartNanos         int64
	Interval                  time.Duration
	CollectLoadAverage        bool
	CollectSystemNetwork      bool
	CollectPressureStall      bool
	CollectResourceEstimation bool
	CollectWorkerData         bool
	ResourceEstimator         ResourceEstimator
	WorkerMetricsCollector    WorkerProcessMetricsCollector
	BugReporter               BugReporter
}

// Sampler is the background daemon goroutine (C8) that periodically reads
// process/OS resource counters and enqueues them as counter-series events
// via the same writer path TaskData uses.
type Sampler struct {
	cfg  SamplerConfig
	proc *process.Process

	stop chan struct{}
	done chan struct{}

	lastNet   *gopsnet.IOCountersStat
	lastNetAt time.Time
}

// NewSampler constructs a Sampler but does not start its goroutine; call
// Start for that.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Interval == 0 {
		cfg.Interval = samplerInterval
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Sampler{
		cfg:  cfg,
		proc: proc,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the sampler's background goroutine.
func (s *Sampler) Start() {
	go s.run()
}

func (s *Sampler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	if s.proc == nil {
		return
	}
	now := s.cfg.Clock.NanoTime()
	series := make(map[string][]float64)

	if cpuPercent, err := s.proc.Percent(0); err == nil {
		series["process/cpu_percent"] = []float64{cpuPercent}
	} else {
		metrics.ProfilerResourceSampleFailures.Inc()
	}

	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		series["process/memory_rss_bytes"] = []float64{float64(mem.RSS)}
	} else {
		metrics.ProfilerResourceSampleFailures.Inc()
	}

	if s.cfg.CollectLoadAverage {
		if load, ok := readLoadAverage(); ok {
			series["system/load_average_1m"] = []float64{load}
		}
	}

	if s.cfg.CollectPressureStall {
		if memSome, ioSome, ok := readPressureStall(); ok {
			series["system/pressure_stall_memory"] = []float64{memSome}
			series["system/pressure_stall_io"] = []float64{ioSome}
		}
	}

	if s.cfg.CollectSystemNetwork {
		if rx, tx, ok := s.networkRates(); ok {
			series["system/network_recv_bytes_per_sec"] = []float64{rx}
			series["system/network_send_bytes_per_sec"] = []float64{tx}
		}
	}

	if s.cfg.CollectWorkerData && s.cfg.WorkerMetricsCollector != nil {
		if memBytes, cpuNanos, ok := s.cfg.WorkerMetricsCollector.CollectWorkerMetrics(); ok {
			series["workers/memory_bytes"] = []float64{memBytes}
			series["workers/cpu_nanos"] = []float64{cpuNanos}
		}
	}

	if s.cfg.CollectResourceEstimation && s.cfg.ResourceEstimator != nil {
		if v, ok := s.cfg.ResourceEstimator.EstimateResourceUsage(); ok {
			series["estimate/resource_usage"] = []float64{v}
		}
	}

	if len(series) == 0 {
		return
	}
	s.cfg.Writer.Enqueue(&CounterSeriesBatch{
		Name:               "resources",
		Series:             series,
		BucketNanos:        0,
		ProfileStartOffset: now - s.cfg.ProfileStartNanos,
	})
}

// networkRates reads cumulative system-wide network counters and returns
// the per-second send/receive rate since the previous call, degrading to
// ok=false on the first call (no prior sample to diff against) or if the
// underlying gopsutil read fails.
func (s *Sampler) networkRates() (rxPerSec, txPerSec float64, ok bool) {
	counters, err := gopsnet.IOCounters(false)
	if err != nil || len(counters) == 0 {
		return 0, 0, false
	}
	cur := counters[0]
	now := time.Now()
	if s.lastNet == nil {
		s.lastNet = &cur
		s.lastNetAt = now
		return 0, 0, false
	}
	elapsed := now.Sub(s.lastNetAt).Seconds()
	if elapsed <= 0 {
		return 0, 0, false
	}
	rx := float64(cur.BytesRecv-s.lastNet.BytesRecv) / elapsed
	tx := float64(cur.BytesSent-s.lastNet.BytesSent) / elapsed
	s.lastNet = &cur
	s.lastNetAt = now
	return rx, tx, true
}

// Stop signals the sampler goroutine to exit and blocks until it has.
func (s *Sampler) Stop() {
	close(s.stop)
	<-s.done
}
