package profiler_test

import "bytes"

// nopSink is an io.WriteCloser over an in-memory buffer, standing in for
// the buffered on-disk trace file the real caller would open.
type nopSink struct {
	bytes.Buffer
	closed bool
}

func (s *nopSink) Close() error {
	s.closed = true
	return nil
}
