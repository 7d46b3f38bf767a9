// Package profiler implements the build system's in-process profiler: a
// thread-safe event recorder instrumenting arbitrary code regions across
// worker goroutines, classifying each by TaskType, aggregating top-K
// slowest instances and duration histograms per type, sampling
// process-wide resource usage on a timer, and streaming the result to a
// Chrome Trace Event JSON file.
package profiler

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/buildbuddy-io/buildprofiler/server/util/flagutil"
	"github.com/buildbuddy-io/buildprofiler/server/util/log"
	"github.com/buildbuddy-io/buildprofiler/server/util/log/gcp"
	"github.com/buildbuddy-io/buildprofiler/server/util/status"
	"golang.org/x/sync/errgroup"
)

// enabledTaskTypes lets a binary restrict profiling to a subset of
// TaskTypes from the command line instead of populating
// StartConfig.EnabledTypes in code; an explicit StartConfig.EnabledTypes
// always takes priority over this flag. Names match the TaskType
// identifiers in tasktype.go (e.g. "ACTION,VFS_STAT").
var enabledTaskTypes = flagutil.StringSlice("profiler.enabled_task_types", "Comma-separated list of TaskType names to record (e.g. ACTION,VFS_STAT). Empty records every type.")

// StartConfig is the configuration passed to Profiler.Start. It mirrors
// the Java source's many-argument start() overload; Go groups it into one
// struct rather than threading a dozen positional booleans through call
// sites.
type StartConfig struct {
	// EnabledTypes restricts recording to this set of TaskTypes. Empty (or
	// nil) means every registered TaskType is enabled.
	EnabledTypes []TaskType

	// Sink is the output writer the trace is streamed to. Required.
	Sink io.WriteCloser
	// Compressed wraps Sink in a gzip stream when true
	// (JSON_TRACE_FILE_COMPRESSED_FORMAT).
	Compressed bool
	// SlimProfile enables the writer's micro-event merge pass and drops
	// ActionTaskData's primary-output field from the emitted trace.
	SlimProfile bool

	// OutputBase and BuildID are carried through only for the startup log
	// line; on-disk file placement is out of scope for this package (the
	// caller already resolved Sink to a concrete file).
	OutputBase string
	BuildID    string

	// RecordAllDurations disables the per-TaskType minDurationNanos floor:
	// every region is enqueued regardless of duration.
	RecordAllDurations bool

	// Clock is the monotonic nanosecond source. Defaults to NewClock().
	Clock Clock
	// StartNanos overrides the captured start time (primarily for tests).
	// Zero means "use Clock.NanoTime() at Start()".
	StartNanos int64

	IncludePrimaryOutput  bool
	IncludeTargetLabel    bool
	CollectTaskHistograms bool

	CollectWorkerData         bool
	CollectLoadAverage        bool
	CollectSystemNetwork      bool
	CollectPressureStall      bool
	CollectResourceEstimation bool

	ResourceEstimator      ResourceEstimator
	WorkerMetricsCollector WorkerProcessMetricsCollector
	BugReporter            BugReporter
	PhaseObserver          PhaseObserver
}

// profilerState is the immutable-after-construction snapshot of everything
// a single profiling session needs. A *profilerState is what the facade's
// atomic writerRef-equivalent slot holds: nil means inactive, non-nil means
// active, and every fast-path read touches only this pointer and the
// fields hanging off it — never the facade's mutex.
type profilerState struct {
	startNanos    int64
	cpuStartNanos int64
	clock         Clock

	enabledTypes          map[TaskType]bool
	recordAllDurations    bool
	collectTaskHistograms bool
	includePrimaryOutput  bool
	includeTargetLabel    bool
	buildID               string

	histograms map[TaskType]StatRecorder
	slowest    map[TaskType]*SlowestTaskAggregator

	actionCounts      *TimeSeries
	actionCacheCounts *TimeSeries

	laneAllocator *LaneAllocator
	writer        *Writer
	sampler       *Sampler

	bugReporter   BugReporter
	phaseObserver PhaseObserver
}

// Profiler is the process-wide facade (C9). The zero value is inactive;
// use Instance() to reach the singleton every instrumentation call site
// shares.
type Profiler struct {
	// mu serializes Start/Stop transitions; it is never held on the
	// profile()/logSimpleTask() fast path.
	mu sync.Mutex
	// state holds the live session, or nil when inactive. Fast-path reads
	// load it once and never need mu.
	state atomic.Pointer[profilerState]
}

var singleton = &Profiler{}

// Instance returns the process-wide Profiler every caller shares.
func Instance() *Profiler { return singleton }

// Start transitions the profiler from inactive to active, allocating
// every per-session component (histograms, slowest-task shards, lane
// allocator, writer, sampler) and writing the trace's opening bracket. It
// fails if the profiler is already active.
func (p *Profiler) Start(cfg StartConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Load() != nil {
		return status.FailedPreconditionError("profiler: Start called while already active")
	}
	if cfg.Sink == nil {
		return status.InvalidArgumentError("profiler: Start requires a non-nil sink")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = NewClock()
	}
	startNanos := cfg.StartNanos
	if startNanos == 0 {
		startNanos = clock.NanoTime()
	}

	bugReporter := cfg.BugReporter
	if bugReporter == nil {
		bugReporter = NewDefaultBugReporter()
	}
	phaseObserver := cfg.PhaseObserver
	if phaseObserver == nil {
		phaseObserver = noopPhaseObserver{}
	}

	// Route the module logger to Cloud Logging too, if the operator
	// configured app.log_gcp_project_id/app.log_gcp_log_id; a writer error
	// (e.g. bad credentials) is reported through the bug reporter rather
	// than failing Start, since logging destination is never load-bearing
	// for profiling itself.
	if gcpWriter, err := gcp.NewLogWriter(); err != nil {
		bugReporter.ReportBug("gcp_log_writer", err)
	} else if gcpWriter != nil {
		log.Configure(gcpWriter)
	}

	enabledNames := cfg.EnabledTypes
	if len(enabledNames) == 0 && len(*enabledTaskTypes) > 0 {
		enabledNames = ParseTaskTypeNames(*enabledTaskTypes)
	}
	enabled := make(map[TaskType]bool, len(AllTaskTypes()))
	if len(enabledNames) == 0 {
		for _, t := range AllTaskTypes() {
			enabled[t] = true
		}
	} else {
		for _, t := range enabledNames {
			enabled[t] = true
		}
	}

	histograms := make(map[TaskType]StatRecorder)
	if cfg.CollectTaskHistograms {
		for t := range enabled {
			histograms[t] = NewStatRecorder(t)
		}
	}

	slowest := make(map[TaskType]*SlowestTaskAggregator)
	for t := range enabled {
		if t.CollectsSlowestInstances() {
			slowest[t] = NewSlowestTaskAggregator()
		}
	}

	writer := NewWriter(cfg.Sink, cfg.Compressed, cfg.SlimProfile, startNanos)
	laneAllocator := NewLaneAllocator(func(md ThreadMetadata) {
		writer.Enqueue(&md)
	})

	s := &profilerState{
		startNanos:            startNanos,
		cpuStartNanos:         readProcessCPUNanos(),
		clock:                 clock,
		enabledTypes:          enabled,
		recordAllDurations:    cfg.RecordAllDurations,
		collectTaskHistograms: cfg.CollectTaskHistograms,
		includePrimaryOutput:  cfg.IncludePrimaryOutput,
		includeTargetLabel:    cfg.IncludeTargetLabel,
		buildID:               cfg.BuildID,
		histograms:            histograms,
		slowest:               slowest,
		actionCounts:          NewTimeSeries(startNanos),
		actionCacheCounts:     NewTimeSeries(startNanos),
		laneAllocator:         laneAllocator,
		writer:                writer,
		bugReporter:           bugReporter,
		phaseObserver:         phaseObserver,
	}

	s.sampler = NewSampler(SamplerConfig{
		Clock:                     clock,
		Writer:                    writer,
		ProfileStartNanos:         startNanos,
		CollectLoadAverage:        cfg.CollectLoadAverage,
		CollectSystemNetwork:      cfg.CollectSystemNetwork,
		CollectPressureStall:      cfg.CollectPressureStall,
		CollectResourceEstimation: cfg.CollectResourceEstimation,
		CollectWorkerData:         cfg.CollectWorkerData,
		ResourceEstimator:         cfg.ResourceEstimator,
		WorkerMetricsCollector:    cfg.WorkerMetricsCollector,
		BugReporter:               bugReporter,
	})

	writer.Start()
	s.sampler.Start()
	p.state.Store(s)

	log.Infof("profiler: started for build %q (output base %q)", cfg.BuildID, cfg.OutputBase)
	return nil
}

// Stop drains the writer and sampler, emits the final counter series and
// a "Finishing" marker, and transitions back to inactive. It is
// idempotent: a second call with no intervening Start is a no-op.
func (p *Profiler) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state.Load()
	if s == nil {
		return
	}
	// Clearing state first means no new TaskData can be enqueued through
	// the facade from this point on. A producer that already loaded s
	// before this Store may still call Enqueue on s.writer: an item that
	// arrives before Shutdown closes the queue below is drained, and one
	// that arrives after is dropped and counted in ProfilerEventsDropped.
	p.state.Store(nil)

	stopNanos := s.clock.NanoTime()
	series := []CounterSeries{
		{Type: ActionCounts, BucketNanos: bucketDurationNanos, StartNanos: s.startNanos, Values: s.actionCounts.Densify(stopNanos)},
		{Type: ActionCacheCounts, BucketNanos: bucketDurationNanos, StartNanos: s.startNanos, Values: s.actionCacheCounts.Densify(stopNanos)},
	}

	var g errgroup.Group
	g.Go(func() error {
		s.sampler.Stop()
		return nil
	})

	for _, cs := range series {
		s.writer.Enqueue(&CounterSeriesBatch{
			Name:        cs.Type.Description(),
			Series:      map[string][]float64{cs.Type.Description(): cs.Values},
			BucketNanos: cs.BucketNanos,
		})
	}
	s.writer.Enqueue(&TaskData{
		LaneID:      currentLaneID(),
		StartNanos:  stopNanos,
		Type:        Info,
		Description: "Finishing",
	})

	_ = g.Wait() // sampler goroutine never returns an error; Wait just joins it.

	if err := s.writer.Shutdown(); err != nil {
		s.bugReporter.ReportBug("writer_shutdown", err)
	}

	for _, agg := range s.slowest {
		agg.Clear()
	}

	log.Infof("profiler: stopped")
}

// IsActive reports whether the profiler is currently between Start and
// Stop.
func (p *Profiler) IsActive() bool {
	return p.state.Load() != nil
}

// IsProfiling reports whether t would currently be recorded: the profiler
// must be active and t must be in the enabled-types set it was started
// with.
func (p *Profiler) IsProfiling(t TaskType) bool {
	s := p.state.Load()
	return s != nil && s.enabledTypes[t]
}

// NanoTimeMaybe returns the active session's clock reading, or -1 if
// inactive.
func (p *Profiler) NanoTimeMaybe() int64 {
	s := p.state.Load()
	if s == nil {
		return -1
	}
	return s.clock.NanoTime()
}

// ElapsedTimeMaybe returns nanoseconds since Start, or ok=false if
// inactive.
func (p *Profiler) ElapsedTimeMaybe() (nanos int64, ok bool) {
	s := p.state.Load()
	if s == nil {
		return 0, false
	}
	return s.clock.NanoTime() - s.startNanos, true
}

// ProcessCPUTimeMaybe returns process CPU nanoseconds consumed since
// Start, or ok=false if inactive.
func (p *Profiler) ProcessCPUTimeMaybe() (nanos int64, ok bool) {
	s := p.state.Load()
	if s == nil {
		return 0, false
	}
	return readProcessCPUNanos() - s.cpuStartNanos, true
}

// NewLaneFormat registers a printf-style lane-name template as a distinct
// async-lane pool key. Exposed on the facade per the original source's
// createTaskType(format).
func (p *Profiler) NewLaneFormat(template string) LaneFormat {
	return NewLaneFormat(template)
}

func failFastIfEmpty(description string) {
	if description == "" {
		panic(status.InvalidArgumentError("profiler: description must not be empty"))
	}
}

// Profile opens a region of type t with an eagerly-computed description.
// If the profiler is inactive or t is filtered out, it returns a no-op
// handle without touching the clock.
func (p *Profiler) Profile(t TaskType, description string) *Handle {
	failFastIfEmpty(description)
	s := p.state.Load()
	if s == nil || !s.enabledTypes[t] {
		return noopHandle
	}
	return &Handle{
		profiler:    p,
		state:       s,
		laneID:      currentLaneID(),
		taskType:    t,
		description: description,
		startNanos:  s.clock.NanoTime(),
	}
}

// ProfileLazy is Profile's deferred-description form: descriptionFn is
// never invoked when the profiler is inactive or t is filtered out, so
// callers can pass an allocation-heavy description supplier without
// paying for it on the disabled fast path.
func (p *Profiler) ProfileLazy(t TaskType, descriptionFn func() string) *Handle {
	s := p.state.Load()
	if s == nil || !s.enabledTypes[t] {
		return noopHandle
	}
	description := descriptionFn()
	failFastIfEmpty(description)
	return &Handle{
		profiler:    p,
		state:       s,
		laneID:      currentLaneID(),
		taskType:    t,
		description: description,
		startNanos:  s.clock.NanoTime(),
	}
}

// ProfileAction is Profile's ActionTaskData-producing form. primaryOutput
// and targetLabel are retained only if IncludePrimaryOutput /
// IncludeTargetLabel were set at Start; mnemonic is always retained when
// non-empty.
func (p *Profiler) ProfileAction(t TaskType, mnemonic, description, primaryOutput, targetLabel string) *Handle {
	failFastIfEmpty(description)
	s := p.state.Load()
	if s == nil || !s.enabledTypes[t] {
		return noopHandle
	}
	action := &ActionTaskData{Mnemonic: mnemonic}
	if s.includePrimaryOutput {
		action.PrimaryOutputPath = primaryOutput
	}
	if s.includeTargetLabel {
		action.TargetLabel = targetLabel
	}
	return &Handle{
		profiler:    p,
		state:       s,
		laneID:      currentLaneID(),
		taskType:    t,
		description: description,
		startNanos:  s.clock.NanoTime(),
		action:      action,
	}
}

// ProfileAsync allocates a synthetic lane via the lane allocator, invokes
// builder with a ScopedProfiler bound to that lane, and arranges for one
// TaskData spanning lane-acquisition-to-completion to be recorded — and
// the lane released — once the channel builder returns has closed. This
// plays the role of the Java source's Future-wrapping profileAsync using
// Go's channel-based completion signal in place of a Future.
//
// If the profiler is inactive, builder is still invoked (with an inert
// ScopedProfiler whose Profile() calls are all no-ops), but no lane is
// allocated and no TaskData is recorded.
func (p *Profiler) ProfileAsync(t TaskType, description string, format LaneFormat, builder func(*ScopedProfiler) <-chan struct{}) <-chan struct{} {
	failFastIfEmpty(description)
	s := p.state.Load()
	if s == nil {
		return builder(inertScopedProfiler)
	}

	laneID := s.laneAllocator.Acquire(format)
	start := s.clock.NanoTime()
	sp := &ScopedProfiler{profiler: p, state: s, laneID: laneID}
	inner := builder(sp)

	out := make(chan struct{})
	go func() {
		<-inner
		end := s.clock.NanoTime()
		duration := end - start
		if duration < 0 {
			duration = 0
		}
		p.recordTask(s, laneID, t, description, start, duration, nil)
		s.laneAllocator.Release(format, laneID)
		close(out)
	}()
	return out
}

// LogSimpleTask records an already-completed task, using the current
// clock reading as its end time.
func (p *Profiler) LogSimpleTask(startNanos int64, t TaskType, description string) {
	p.logCompletedTask(startNanos, -1, t, description)
}

// LogSimpleTaskWithEnd records an already-completed task with an explicit
// end time (the two-timestamp overload of logSimpleTask).
func (p *Profiler) LogSimpleTaskWithEnd(startNanos, endNanos int64, t TaskType, description string) {
	p.logCompletedTask(startNanos, endNanos, t, description)
}

func (p *Profiler) logCompletedTask(startNanos, endNanos int64, t TaskType, description string) {
	failFastIfEmpty(description)
	s := p.state.Load()
	if s == nil || !s.enabledTypes[t] {
		return
	}
	if endNanos < 0 {
		endNanos = s.clock.NanoTime()
	}
	duration := endNanos - startNanos
	if duration < 0 {
		duration = 0
	}
	p.recordTask(s, currentLaneID(), t, description, startNanos, duration, nil)
}

// LogSimpleTaskDuration records an already-completed task given its
// duration directly, without recomputing it from two timestamps.
func (p *Profiler) LogSimpleTaskDuration(startNanos, durationNanos int64, t TaskType, description string) {
	failFastIfEmpty(description)
	s := p.state.Load()
	if s == nil || !s.enabledTypes[t] {
		return
	}
	if durationNanos < 0 {
		durationNanos = 0
	}
	p.recordTask(s, currentLaneID(), t, description, startNanos, durationNanos, nil)
}

// LogEventAtTime records an instantaneous (zero-duration) event at
// atNanos.
func (p *Profiler) LogEventAtTime(atNanos int64, t TaskType, description string) {
	failFastIfEmpty(description)
	s := p.state.Load()
	if s == nil || !s.enabledTypes[t] {
		return
	}
	p.recordTask(s, currentLaneID(), t, description, atNanos, 0, nil)
}

// MarkPhase emits a PHASE event and signals the phase observer (the
// external memory-profiler analog) of the boundary.
func (p *Profiler) MarkPhase(phase string) {
	s := p.state.Load()
	if s == nil {
		return
	}
	if s.phaseObserver != nil {
		s.phaseObserver.OnPhaseChange(phase)
	}
	p.recordTask(s, currentLaneID(), Phase, phase, s.clock.NanoTime(), 0, nil)
}

// GetSlowestTasks concatenates the top-30-per-type slowest-task lists
// across every type that collects them. Only meaningful while active;
// returns nil otherwise.
func (p *Profiler) GetSlowestTasks() []SlowTask {
	s := p.state.Load()
	if s == nil {
		return nil
	}
	var all []SlowTask
	for _, agg := range s.slowest {
		all = append(all, agg.Merge()...)
	}
	return all
}

// GetTasksHistograms returns a snapshot of every still-live histogram
// while active. Per the original source's documented (and here
// deliberately preserved) behavior, this is a snapshot of in-progress
// data, not a stable point-in-time view — it returns an empty slice when
// inactive rather than the last session's data.
func (p *Profiler) GetTasksHistograms() []HistogramSnapshot {
	s := p.state.Load()
	if s == nil {
		return nil
	}
	var all []HistogramSnapshot
	for _, rec := range s.histograms {
		all = append(all, rec.Snapshot()...)
	}
	return all
}

// LogCounters enqueues an arbitrary pre-built counter series to the
// writer, for collaborators that maintain their own counter state outside
// the profiler's own C5 time-series (e.g. a caller-side metrics bridge).
func (p *Profiler) LogCounters(name string, series map[string][]float64, profileStartOffset, bucketNanos int64) {
	s := p.state.Load()
	if s == nil {
		return
	}
	s.writer.Enqueue(&CounterSeriesBatch{
		Name:               name,
		Series:             series,
		BucketNanos:        bucketNanos,
		ProfileStartOffset: profileStartOffset,
	})
}

// recordTask applies the recording policy common to every entry point:
// histograms are updated unconditionally (when enabled), but the TaskData
// itself is only enqueued, fed to the slowest-task aggregator, and folded
// into the action-count time series when duration passes t's
// minDurationNanos floor or RecordAllDurations overrides that floor.
func (p *Profiler) recordTask(s *profilerState, laneID uint64, t TaskType, description string, startNanos, durationNanos int64, action *ActionTaskData) {
	if s.collectTaskHistograms {
		if rec, ok := s.histograms[t]; ok {
			rec.Add(durationNanos/1_000_000, description)
		}
	}
	if !s.recordAllDurations && durationNanos < t.MinDurationNanos() {
		return
	}

	if agg, ok := s.slowest[t]; ok {
		agg.Add(laneID, SlowTask{DurationNanos: durationNanos, Description: description, Type: t})
	}

	// Action-count criterion preserved verbatim per spec §9's open
	// question: ACTION, or INFO with description exactly "discoverInputs".
	if t == Action || (t == Info && description == "discoverInputs") {
		s.actionCounts.AddRange(startNanos, startNanos+durationNanos)
	} else if t == ActionCheck {
		s.actionCacheCounts.AddRange(startNanos, startNanos+durationNanos)
	}

	s.writer.Enqueue(&TaskData{
		LaneID:        laneID,
		StartNanos:    startNanos,
		DurationNanos: durationNanos,
		Type:          t,
		Description:   description,
		Action:        action,
	})
}
