package profiler

import "sync"

// Handle is the single-shot scoped region value returned by Profile,
// ProfileLazy, and ProfileAction. It is the Go analog of a scope guard:
// the caller is expected to defer h.End() immediately after acquiring it
// so the region closes on every exit path, including early returns and
// panics recovered higher up the stack.
type Handle struct {
	profiler    *Profiler
	state       *profilerState
	laneID      uint64
	taskType    TaskType
	description string
	startNanos  int64
	action      *ActionTaskData
	once        sync.Once
}

// noopHandle is returned whenever profiling is disabled or the task type
// is filtered out. It carries no profiler reference, so End is always a
// true no-op for it — no atomic load, no clock read.
var noopHandle = &Handle{}

// End completes the region, recording its duration. Calling End more than
// once is safe; only the first call has any effect. If the profiler
// transitioned to a different active session (or to inactive) between
// acquiring the handle and calling End, the release is silently ignored,
// per spec's "if the profiler transitioned to inactive between start and
// release, the handle's release is silently ignored beyond the duration
// computation."
func (h *Handle) End() {
	if h == nil || h.profiler == nil {
		return
	}
	h.once.Do(func() {
		if h.profiler.state.Load() != h.state {
			return
		}
		end := h.state.clock.NanoTime()
		duration := end - h.startNanos
		if duration < 0 {
			duration = 0
		}
		h.profiler.recordTask(h.state, h.laneID, h.taskType, h.description, h.startNanos, duration, h.action)
	})
}
