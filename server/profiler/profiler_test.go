package profiler_test

import (
	"encoding/json"
	"testing"

	"github.com/buildbuddy-io/buildprofiler/server/profiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type traceEvent struct {
	Cat  string                 `json:"cat"`
	Name string                 `json:"name"`
	Ph   string                 `json:"ph"`
	Ts   float64                `json:"ts"`
	Dur  *float64               `json:"dur"`
	Pid  int                    `json:"pid"`
	Tid  uint64                 `json:"tid"`
	Args map[string]interface{} `json:"args"`
	Out  string                 `json:"out"`
}

func decodeTrace(t *testing.T, raw []byte) []traceEvent {
	t.Helper()
	var events []traceEvent
	require.NoError(t, json.Unmarshal(raw, &events))
	return events
}

func findDurationEvents(events []traceEvent, cat string) []traceEvent {
	var out []traceEvent
	for _, e := range events {
		if e.Cat == cat && e.Ph == "X" {
			out = append(out, e)
		}
	}
	return out
}

// Property 1: disabled profiling produces no output and no observable
// state change.
func TestDisabledIsSilent(t *testing.T) {
	p := profiler.Instance()
	require.False(t, p.IsActive())

	h := p.Profile(profiler.Info, "x")
	h.End()

	assert.False(t, p.IsActive())
	assert.Nil(t, p.GetSlowestTasks())
	assert.Equal(t, int64(-1), p.NanoTimeMaybe())
}

// Property 2: round trip of ts/dur/cat/name through the emitted JSON.
func TestRoundTrip(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
	}))

	clock.Set(1_000_000)
	h := p.Profile(profiler.Info, "x")
	clock.Set(1_500_000)
	h.End()

	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	durEvents := findDurationEvents(events, profiler.Info.Description())
	require.Len(t, durEvents, 1)
	ev := durEvents[0]
	assert.Equal(t, "x", ev.Name)
	assert.Equal(t, float64(1000), ev.Ts) // 1_000_000ns since profileStart -> 1000us
	require.NotNil(t, ev.Dur)
	assert.Equal(t, float64(500), *ev.Dur) // 500_000ns duration -> 500us
	assert.Equal(t, 1, ev.Pid)
}

// Property 3: events shorter than minDurationNanos are dropped from the
// trace (but still counted in the histogram) unless RecordAllDurations.
func TestMinDurationFilter(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:                  sink,
		Clock:                 clock,
		RecordAllDurations:    false,
		CollectTaskHistograms: true,
	}))

	durationsMs := []int64{1, 5, 10, 20, 50}
	for _, ms := range durationsMs {
		start := clock.NanoTime()
		h := p.Profile(profiler.VFSStat, "/tmp/f")
		clock.Set(start + ms*1_000_000)
		h.End()
	}

	histos := p.GetTasksHistograms()
	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	durEvents := findDurationEvents(events, profiler.VFSStat.Description())
	// VFSStat's floor is 10ms: only the 10/20/50ms samples should survive.
	assert.Len(t, durEvents, 3)

	var totalSamples int64
	for _, h := range histos {
		totalSamples += h.Total
	}
	assert.Equal(t, int64(5), totalSamples)
}

// Property 4: getSlowestTasks returns the true top-K across all shards.
func TestTopKStability(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
	}))

	// 50 events with distinct, known durations 1ms..50ms; the true top 30
	// are durations 21ms..50ms.
	for i := int64(1); i <= 50; i++ {
		start := clock.NanoTime()
		h := p.Profile(profiler.Action, "job")
		clock.Set(start + i*1_000_000)
		h.End()
		clock.Set(start) // reset so each event starts from the same base
	}

	slowest := p.GetSlowestTasks()
	p.Stop()

	require.Len(t, slowest, 30)
	var minSeen int64 = 1 << 62
	for _, s := range slowest {
		if s.DurationNanos < minSeen {
			minSeen = s.DurationNanos
		}
	}
	assert.Equal(t, int64(21_000_000), minSeen)
}

// Property 5: lane ids are recycled after release, smallest-first.
func TestLaneRecycling(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
	}))

	format := p.NewLaneFormat("async %d")

	runOne := func() <-chan struct{} {
		done := make(chan struct{})
		close(done)
		return p.ProfileAsync(profiler.Action, "job", format, func(*profiler.ScopedProfiler) <-chan struct{} {
			return done
		})
	}

	<-runOne()
	<-runOne()
	<-runOne()

	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	lanes := map[uint64]bool{}
	for _, e := range events {
		if e.Cat == profiler.Action.Description() {
			lanes[e.Tid] = true
		}
	}
	// All three async tasks ran sequentially and released their lane
	// before the next acquired one, so they all land on the same lane id.
	assert.Len(t, lanes, 1)
}

// Property 6: Stop is idempotent.
func TestIdempotentStop(t *testing.T) {
	p := profiler.Instance()
	sink := &nopSink{}
	require.NoError(t, p.Start(profiler.StartConfig{Sink: sink}))

	p.Stop()
	assert.False(t, p.IsActive())
	p.Stop()
	assert.False(t, p.IsActive())
}

// Property 7: ACTION_COUNTS buckets sum per-event contributions and
// densify to the expected length.
func TestActionCountBucketing(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
	}))

	// One ACTION event fully inside bucket 0 ([0, 200ms)).
	h := p.Profile(profiler.Action, "a")
	clock.Set(100 * 1_000_000)
	h.End()

	clock.Set(250 * 1_000_000)
	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	var counterEvents []traceEvent
	for _, e := range events {
		if e.Ph == "C" && e.Name == profiler.ActionCounts.Description() {
			counterEvents = append(counterEvents, e)
		}
	}
	require.NotEmpty(t, counterEvents)
	// ceil(250ms / 200ms) == 2 buckets.
	assert.Len(t, counterEvents, 2)
	first := counterEvents[0].Args[profiler.ActionCounts.Description()].(float64)
	assert.Equal(t, float64(1), first)
}

// ProfileAction retains primaryOutput/targetLabel only when the
// corresponding include flags were set at Start, always retains the
// mnemonic, and emits them via "out"/args.{target,mnemonic}.
func TestProfileActionIncludeFlags(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:                 sink,
		Clock:                clock,
		RecordAllDurations:   true,
		IncludePrimaryOutput: true,
		IncludeTargetLabel:   false,
	}))

	h := p.ProfileAction(profiler.Action, "CppCompile", "compile foo.cc", "bazel-out/foo.o", "//foo:foo")
	clock.Set(1_000_000)
	h.End()
	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	durEvents := findDurationEvents(events, profiler.Action.Description())
	require.Len(t, durEvents, 1)
	ev := durEvents[0]

	assert.Equal(t, "bazel-out/foo.o", ev.Out) // IncludePrimaryOutput was true
	require.NotNil(t, ev.Args)
	assert.Equal(t, "CppCompile", ev.Args["mnemonic"])
	_, hasTarget := ev.Args["target"]
	assert.False(t, hasTarget) // IncludeTargetLabel was false
}

// CriticalPathComponent events are drawn on a fixed reserved lane, with
// the real thread id duplicated into args.tid.
func TestCriticalPathComponentReservedLane(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
	}))

	h := p.Profile(profiler.CriticalPathComponent, "link")
	clock.Set(1_000_000)
	h.End()
	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	durEvents := findDurationEvents(events, profiler.CriticalPathComponent.Description())
	require.Len(t, durEvents, 1)
	ev := durEvents[0]

	assert.Equal(t, uint64(999_999), ev.Tid)
	require.NotNil(t, ev.Args)
	assert.NotNil(t, ev.Args["tid"])
}

// ProfileLazy never invokes its description supplier when the profiler is
// inactive or the type is filtered out.
func TestProfileLazySkipsSupplierWhenFiltered(t *testing.T) {
	p := profiler.Instance()

	called := false
	h := p.ProfileLazy(profiler.Action, func() string {
		called = true
		return "should not run"
	})
	h.End()
	assert.False(t, called)

	clock := newFakeClock(0)
	sink := &nopSink{}
	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
		EnabledTypes:       []profiler.TaskType{profiler.Info},
	}))

	called = false
	h = p.ProfileLazy(profiler.Action, func() string {
		called = true
		return "filtered out"
	})
	h.End()
	assert.False(t, called)

	called = false
	h = p.ProfileLazy(profiler.Info, func() string {
		called = true
		return "recorded"
	})
	clock.Set(1_000_000)
	h.End()
	assert.True(t, called)

	p.Stop()
}

// LogSimpleTask/LogSimpleTaskWithEnd/LogSimpleTaskDuration each record an
// already-completed task without going through a Handle.
func TestLogSimpleTaskVariants(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
	}))

	p.LogSimpleTaskWithEnd(0, 1_000_000, profiler.Info, "already-done")
	p.LogSimpleTaskDuration(2_000_000, 500_000, profiler.Info, "exact-duration")

	clock.Set(3_000_000)
	p.LogSimpleTask(2_500_000, profiler.Info, "until-now")

	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	durEvents := findDurationEvents(events, profiler.Info.Description())
	byName := map[string]traceEvent{}
	for _, e := range durEvents {
		byName[e.Name] = e
	}

	require.Contains(t, byName, "already-done")
	require.NotNil(t, byName["already-done"].Dur)
	assert.Equal(t, float64(1000), *byName["already-done"].Dur)

	require.Contains(t, byName, "exact-duration")
	require.NotNil(t, byName["exact-duration"].Dur)
	assert.Equal(t, float64(500), *byName["exact-duration"].Dur)

	require.Contains(t, byName, "until-now")
	require.NotNil(t, byName["until-now"].Dur)
	assert.Equal(t, float64(500), *byName["until-now"].Dur) // clock(3ms) - start(2.5ms)
}

// LogEventAtTime records an instantaneous event (ph="i", no dur).
func TestLogEventAtTime(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
	}))

	p.LogEventAtTime(5_000_000, profiler.Info, "instant")
	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	var found *traceEvent
	for i := range events {
		if events[i].Name == "instant" {
			found = &events[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "i", found.Ph)
	assert.Nil(t, found.Dur)
	assert.Equal(t, float64(5000), found.Ts)
}

// phaseObserverSpy records every OnPhaseChange call it receives.
type phaseObserverSpy struct {
	phases []string
}

func (o *phaseObserverSpy) OnPhaseChange(phase string) {
	o.phases = append(o.phases, phase)
}

// MarkPhase emits a PHASE event and signals the configured PhaseObserver.
func TestMarkPhase(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}
	observer := &phaseObserverSpy{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
		PhaseObserver:      observer,
	}))

	p.MarkPhase("ANALYSIS")
	p.Stop()

	assert.Equal(t, []string{"ANALYSIS"}, observer.phases)
}

// LogCounters enqueues an arbitrary pre-built counter series through the
// same writer path as the profiler's own time series.
func TestLogCounters(t *testing.T) {
	p := profiler.Instance()
	clock := newFakeClock(0)
	sink := &nopSink{}

	require.NoError(t, p.Start(profiler.StartConfig{
		Sink:               sink,
		Clock:              clock,
		RecordAllDurations: true,
	}))

	p.LogCounters("custom_series", map[string][]float64{"widgets": {1, 2, 3}}, 0, 200*1_000_000)
	p.Stop()

	events := decodeTrace(t, sink.Bytes())
	var counterEvents []traceEvent
	for _, e := range events {
		if e.Ph == "C" && e.Name == "custom_series" {
			counterEvents = append(counterEvents, e)
		}
	}
	require.Len(t, counterEvents, 3)
	assert.Equal(t, float64(1), counterEvents[0].Args["widgets"])
	assert.Equal(t, float64(2), counterEvents[1].Args["widgets"])
	assert.Equal(t, float64(3), counterEvents[2].Args["widgets"])
}
