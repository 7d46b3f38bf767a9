package profiler_test

import "sync/atomic"

// fakeClock is a deterministic Clock for tests: NanoTime returns whatever
// was last set via Set, so tests can script exact start/stop timestamps
// instead of racing real wall-clock time.
type fakeClock struct {
	nanos atomic.Int64
}

func newFakeClock(start int64) *fakeClock {
	c := &fakeClock{}
	c.nanos.Store(start)
	return c
}

func (c *fakeClock) NanoTime() int64 {
	return c.nanos.Load()
}

func (c *fakeClock) Set(nanos int64) {
	c.nanos.Store(nanos)
}

func (c *fakeClock) Advance(delta int64) int64 {
	return c.nanos.Add(delta)
}
