package profiler

import "time"

// Clock is the monotonic nanosecond source the profiler times regions
// against. Injected so tests can supply a deterministic fake instead of
// wall-clock time.
type Clock interface {
	NanoTime() int64
}

type realClock struct {
	start time.Time
}

// NewClock returns a Clock backed by time.Now()/time.Since(), which on all
// supported platforms uses the monotonic reading embedded in time.Time.
func NewClock() Clock {
	return &realClock{start: time.Now()}
}

func (c *realClock) NanoTime() int64 {
	return int64(time.Since(c.start))
}
