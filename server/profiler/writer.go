package profiler

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"sync"

	"github.com/buildbuddy-io/buildprofiler/server/metrics"
	"github.com/buildbuddy-io/buildprofiler/server/util/log"
	"github.com/prometheus/client_golang/prometheus"
)

// chromeEvent is the on-wire shape of a single Chrome Trace Event JSON
// object. Fields are tagged omitempty so instantaneous events drop "dur"
// and metadata/counter events drop "cat"/"name" as appropriate.
type chromeEvent struct {
	Cat  string                 `json:"cat,omitempty"`
	Name string                 `json:"name,omitempty"`
	Ph   string                 `json:"ph"`
	Ts   float64                `json:"ts"`
	Dur  *float64               `json:"dur,omitempty"`
	Pid  int                    `json:"pid"`
	Tid  uint64                 `json:"tid"`
	Args map[string]interface{} `json:"args,omitempty"`
	Out  string                 `json:"out,omitempty"`
}

// criticalPathLaneID is the fixed reserved lane that every
// CriticalPathComponent event is drawn on, regardless of which real thread
// recorded it; the real thread id is duplicated into args.tid so it's not
// lost.
const criticalPathLaneID = uint64(999_999)

func nanosToMicros(nanos int64) float64 {
	return float64(nanos) / 1000.0
}

// writerItem is anything the writer's queue can hold and eventually
// serialize. TaskData, ThreadMetadata, and CounterSeriesBatch all
// implement it.
type writerItem interface {
	chromeEvents(profileStartNanos int64) []chromeEvent
}

func (t *TaskData) chromeEvents(profileStartNanos int64) []chromeEvent {
	ph := "X"
	var dur *float64
	if t.DurationNanos == 0 {
		ph = "i"
	} else {
		d := nanosToMicros(t.DurationNanos)
		dur = &d
	}

	tid := t.LaneID
	var args map[string]interface{}
	if t.Type == CriticalPathComponent {
		args = map[string]interface{}{"tid": t.LaneID}
		tid = criticalPathLaneID
	}

	out := ""
	if t.Action != nil {
		if t.Action.PrimaryOutputPath != "" {
			out = t.Action.PrimaryOutputPath
		}
		if t.Action.Mnemonic != "" || t.Action.TargetLabel != "" {
			if args == nil {
				args = map[string]interface{}{}
			}
			if t.Action.Mnemonic != "" {
				args["mnemonic"] = t.Action.Mnemonic
			}
			if t.Action.TargetLabel != "" {
				args["target"] = t.Action.TargetLabel
			}
		}
	}

	return []chromeEvent{{
		Cat:  t.Type.Description(),
		Name: t.Description,
		Ph:   ph,
		Ts:   nanosToMicros(t.StartNanos - profileStartNanos),
		Dur:  dur,
		Pid:  1,
		Tid:  tid,
		Args: args,
		Out:  out,
	}}
}

func (m *ThreadMetadata) chromeEvents(int64) []chromeEvent {
	return []chromeEvent{{
		Name: "thread_name",
		Ph:   "M",
		Pid:  1,
		Tid:  m.LaneID,
		Args: map[string]interface{}{"name": m.DisplayName, "sort_index": m.SortIndex},
	}}
}

// CounterSeriesBatch is an arbitrary pre-built set of named counter series
// sharing a common bucket width and start offset, enqueued via the
// facade's logCounters(). Each bucket index becomes one ph="C" event
// carrying every series' value for that bucket in a name-keyed args map.
type CounterSeriesBatch struct {
	Name               string
	Series             map[string][]float64
	BucketNanos        int64
	ProfileStartOffset int64
}

func (b *CounterSeriesBatch) chromeEvents(profileStartNanos int64) []chromeEvent {
	maxLen := 0
	for _, v := range b.Series {
		if len(v) > maxLen {
			maxLen = len(v)
		}
	}
	events := make([]chromeEvent, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		args := make(map[string]interface{}, len(b.Series))
		for name, values := range b.Series {
			if i < len(values) {
				args[name] = values[i]
			} else {
				args[name] = 0.0
			}
		}
		events = append(events, chromeEvent{
			Name: b.Name,
			Ph:   "C",
			Ts:   nanosToMicros(b.ProfileStartOffset + int64(i)*b.BucketNanos),
			Pid:  1,
			Args: args,
		})
	}
	return events
}

// queue is an unbounded, lock-protected FIFO. Push never blocks the
// caller beyond the brief critical section of appending to a slice; there
// is no bound on depth, matching the wait-free-enqueue backpressure policy
// (producers are never slowed down to protect output accuracy).
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []writerItem
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(item writerItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		metrics.ProfilerEventsDropped.Inc()
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

func (q *queue) pop() (writerItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Writer is the background consumer (C7): a single goroutine draining the
// queue and emitting one JSON object per event into a top-level JSON
// array. If slimProfile is set, contiguous same-lane same-type TaskData
// entries with a zero gap between them are merged into one event before
// serialization, and ActionTaskData's primary-output field is dropped.
type Writer struct {
	sink              io.WriteCloser
	bw                *bufio.Writer
	gz                *gzip.Writer
	enc               *json.Encoder
	queue             *queue
	profileStartNanos int64
	slimProfile       bool
	wroteFirst        bool
	done              chan struct{}
}

// NewWriter wraps sink (optionally in a gzip stream) and prepares the
// background writer. The sink is assumed buffered by the caller or is
// wrapped here in a bufio.Writer; the writer never performs small
// unbuffered writes directly to sink.
func NewWriter(sink io.WriteCloser, compressed bool, slimProfile bool, profileStartNanos int64) *Writer {
	w := &Writer{
		sink:              sink,
		queue:             newQueue(),
		profileStartNanos: profileStartNanos,
		slimProfile:       slimProfile,
		done:              make(chan struct{}),
	}
	var out io.Writer = sink
	if compressed {
		w.gz = gzip.NewWriter(sink)
		out = w.gz
	}
	w.bw = bufio.NewWriter(out)
	w.enc = json.NewEncoder(w.bw)
	return w
}

// Start writes the opening "[" and spawns the background worker goroutine.
func (w *Writer) Start() {
	w.bw.WriteByte('[')
	go w.run()
}

func (w *Writer) run() {
	defer close(w.done)
	pending := make([]writerItem, 0, 64)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		items := pending
		if w.slimProfile {
			items = mergeSlim(items)
		}
		for _, item := range items {
			for _, ev := range item.chromeEvents(w.profileStartNanos) {
				if w.wroteFirst {
					w.bw.WriteByte(',')
				}
				w.wroteFirst = true
				if err := w.enc.Encode(ev); err != nil {
					log.Warningf("profiler: failed to encode trace event: %v", err)
				}
				if td, ok := item.(*TaskData); ok {
					metrics.ProfilerEventsWritten.With(prometheus.Labels{metrics.ProfilerTaskTypeLabel: td.Type.Description()}).Inc()
				}
			}
		}
		pending = pending[:0]
	}

	for {
		item, ok := w.queue.pop()
		if !ok {
			flush()
			return
		}
		pending = append(pending, item)
		// Opportunistically drain whatever else is already queued before
		// flushing, so a burst of events gets one merge pass instead of many.
		for {
			more, ok := w.queue.popNonBlocking()
			if !ok {
				break
			}
			pending = append(pending, more)
		}
		metrics.ProfilerQueueLength.Set(float64(w.queue.len()))
		flush()
	}
}

func (q *queue) popNonBlocking() (writerItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// mergeSlim coalesces consecutive TaskData entries sharing the same lane
// and type into a single event when the gap between them is zero, and
// drops ActionTaskData's primary-output field. Non-TaskData items and
// entries that don't qualify pass through unchanged.
func mergeSlim(items []writerItem) []writerItem {
	out := make([]writerItem, 0, len(items))
	for _, item := range items {
		td, ok := item.(*TaskData)
		if !ok {
			out = append(out, item)
			continue
		}
		stripped := *td
		if stripped.Action != nil {
			action := *stripped.Action
			action.PrimaryOutputPath = ""
			stripped.Action = &action
		}
		if len(out) > 0 {
			if prev, ok := out[len(out)-1].(*TaskData); ok &&
				prev.LaneID == stripped.LaneID && prev.Type == stripped.Type &&
				prev.StartNanos+prev.DurationNanos == stripped.StartNanos {
				merged := *prev
				merged.DurationNanos = prev.DurationNanos + stripped.DurationNanos
				out[len(out)-1] = &merged
				continue
			}
		}
		out = append(out, &stripped)
	}
	return out
}

// Enqueue queues item for serialization. Never blocks.
func (w *Writer) Enqueue(item writerItem) {
	w.queue.push(item)
}

// Shutdown closes the queue, waits for the background worker to drain it,
// writes the closing "]", flushes, and closes the sink (and the gzip
// stream, if any).
func (w *Writer) Shutdown() error {
	w.queue.close()
	<-w.done
	if err := w.bw.WriteByte(']'); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return err
		}
	}
	return w.sink.Close()
}
