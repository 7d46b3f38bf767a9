package profiler

import "github.com/buildbuddy-io/buildprofiler/server/util/status"

// ScopedProfiler is the lane-bound handle passed into ProfileAsync's
// builder callback. Every region opened through it via Profile shares the
// async task's synthetic lane, so a trace viewer draws them on one track
// instead of scattering them across whichever goroutine happened to run
// them.
//
// Restored from the original Bazel Profiler.java's ScopedProfiler, whose
// own profile() method always records under ProfilerTask.INFO regardless
// of the enclosing async task's type; preserved verbatim here rather than
// generalized, since nothing in this module's callers needs otherwise.
type ScopedProfiler struct {
	profiler *Profiler
	state    *profilerState
	laneID   uint64
}

// inertScopedProfiler is handed to an async builder when the profiler is
// inactive at the time ProfileAsync is called; every Profile() call on it
// returns the shared noop handle.
var inertScopedProfiler = &ScopedProfiler{}

// Profile opens an INFO-typed region on this ScopedProfiler's lane.
func (sp *ScopedProfiler) Profile(description string) *Handle {
	if sp == nil || sp.profiler == nil {
		return noopHandle
	}
	if description == "" {
		panic(status.InvalidArgumentError("profiler: ScopedProfiler.Profile called with empty description"))
	}
	if !sp.profiler.IsProfiling(Info) {
		return noopHandle
	}
	return &Handle{
		profiler:    sp.profiler,
		state:       sp.state,
		laneID:      sp.laneID,
		taskType:    Info,
		description: description,
		startNanos:  sp.state.clock.NanoTime(),
	}
}
