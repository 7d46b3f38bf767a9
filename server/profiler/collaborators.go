package profiler

import (
	"github.com/buildbuddy-io/buildprofiler/server/util/alert"
	"github.com/buildbuddy-io/buildprofiler/server/util/log"
)

// BugReporter receives the failures the profiler reports: a writer
// Shutdown failure at Stop and a Cloud Logging writer construction failure
// at Start. Those failures never propagate to the caller of
// profile()/logSimpleTask, and a report does not change whether the
// profiler is active. Trace-event encoding errors are only logged by the
// writer, and sampler read failures are only counted in a metric; neither
// reaches the BugReporter.
type BugReporter interface {
	ReportBug(context string, err error)
}

// defaultBugReporter logs the failure and increments the module-wide
// unexpected-event alert counter, the same escalation path
// server/util/alert defines for any other subsystem's unexpected events.
type defaultBugReporter struct{}

func NewDefaultBugReporter() BugReporter { return defaultBugReporter{} }

func (defaultBugReporter) ReportBug(context string, err error) {
	log.Errorf("profiler: %s: %v", context, err)
	alert.UnexpectedEvent("profiler_" + context)
}

// ResourceEstimator supplies an injected estimate of resource usage
// (e.g. predicted memory pressure) consulted by the sampler once per tick.
// It has no required implementation; a nil estimator simply means that
// series is omitted.
type ResourceEstimator interface {
	EstimateResourceUsage() (value float64, ok bool)
}

// WorkerProcessMetricsCollector reports aggregated metrics for a pool of
// worker processes (e.g. persistent workers), consulted by the sampler.
// A nil collector omits that series.
type WorkerProcessMetricsCollector interface {
	CollectWorkerMetrics() (memoryBytes float64, cpuNanos float64, ok bool)
}

// PhaseObserver is the out-of-scope memory-profiler analog signaled by
// markPhase. The real implementation (heap snapshotting) lives outside
// this module's scope; the interface exists so markPhase's dual-signal
// behavior is preserved.
type PhaseObserver interface {
	OnPhaseChange(phase string)
}

type noopPhaseObserver struct{}

func (noopPhaseObserver) OnPhaseChange(string) {}
