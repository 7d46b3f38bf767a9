package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Comments starting with 3 slashes are markdown documentation for the
// metrics in this file, alongside the 'Help' field of each metric.

const (
	// Label constants.
	// Commonly used labels can be added here, and their documentation will be
	// displayed in the metrics where they are used. Each constant's name should
	// end with `Label`.

	/// Profiler task type, e.g. `ACTION`, `INFO`, `VFS_STAT`.
	ProfilerTaskTypeLabel = "task_type"

	/// Unexpected-event name, used as a high level alerting signal.
	EventName = "event_name"
)

const (
	bbNamespace = "buildbuddy"
)

var (
	/// ## Profiler metrics
	///
	/// These metrics track the in-process build profiler's own overhead and
	/// backpressure behavior; they are recorded from the event writer and
	/// resource sampler goroutines, except the dropped-event count, which is
	/// incremented by a producer whose enqueue arrives after shutdown.

	ProfilerQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: bbNamespace,
		Subsystem: "profiler",
		Name:      "queue_length",
		Help:      "Number of events currently buffered in the profiler's event writer queue.",
	})

	ProfilerEventsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: bbNamespace,
		Subsystem: "profiler",
		Name:      "events_written",
		Help:      "Number of trace events written to the profiler output sink, by task type.",
	}, []string{
		ProfilerTaskTypeLabel,
	})

	ProfilerEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: bbNamespace,
		Subsystem: "profiler",
		Name:      "events_dropped",
		Help:      "Number of events that could not be recorded because the profiler was shutting down.",
	})

	ProfilerResourceSampleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: bbNamespace,
		Subsystem: "profiler",
		Name:      "resource_sample_failures",
		Help:      "Number of times the resource sampler failed to read an OS/process counter.",
	})

	/// ## Internal metrics
	///
	/// These metrics are for monitoring lower-level subsystems.

	UnexpectedEvent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: bbNamespace,
		Subsystem: "internal",
		Name:      "unexpected_event_count",
		Help:      "Number of unexpected events, labeled by a short event name. Used to trigger alerts.",
	}, []string{
		EventName,
	})
)
