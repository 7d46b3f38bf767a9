package profiler

import (
	"fmt"
	"sync"

	"github.com/buildbuddy-io/buildprofiler/server/util/priority_queue"
)

// firstLaneID is where synthetic lane ids start, chosen high enough to
// never collide with a real OS thread id.
const firstLaneID = uint64(1_000_000)

// laneSortIndex is the sortIndex given to every synthetic lane's
// ThreadMetadata, placing async lanes below real threads in a trace
// viewer's default ordering.
const laneSortIndex = 1_000_000

// LaneFormat is the per-call-site key under which async lanes are pooled.
// Two call sites sharing a TaskType but using different printf-style name
// templates get independent lane pools and independent name counters, so
// formats — not TaskTypes — are the allocator's real unit of pooling.
type LaneFormat struct {
	template string
}

// NewLaneFormat registers a printf-style lane-name template (containing
// exactly one %d verb) as a distinct pool key.
func NewLaneFormat(template string) LaneFormat {
	return LaneFormat{template: template}
}

func (f LaneFormat) name(counter uint64) string {
	return fmt.Sprintf(f.template, counter)
}

type laneFormatState struct {
	freeList    *priority_queue.PriorityQueue[uint64]
	nameCounter uint64
}

// LaneAllocator hands out synthetic lane ids for async tasks, recycling
// released ids through a per-format free list (smallest id first) before
// minting new ones from a single shared counter.
type LaneAllocator struct {
	mu         sync.Mutex
	nextLaneID uint64
	formats    map[LaneFormat]*laneFormatState
	onMetadata func(ThreadMetadata)
}

// NewLaneAllocator creates an allocator. onMetadata is invoked (outside any
// internal lock) exactly once per newly minted lane, so the caller can
// enqueue the corresponding ThreadMetadata event.
func NewLaneAllocator(onMetadata func(ThreadMetadata)) *LaneAllocator {
	return &LaneAllocator{
		nextLaneID: firstLaneID,
		formats:    make(map[LaneFormat]*laneFormatState),
		onMetadata: onMetadata,
	}
}

func (a *LaneAllocator) stateFor(format LaneFormat) *laneFormatState {
	s, ok := a.formats[format]
	if !ok {
		s = &laneFormatState{freeList: priority_queue.New[uint64]()}
		a.formats[format] = s
	}
	return s
}

// Acquire returns a lane id for format, reusing the smallest freed id if
// one is available, otherwise minting a new one and emitting its
// ThreadMetadata via onMetadata.
func (a *LaneAllocator) Acquire(format LaneFormat) uint64 {
	a.mu.Lock()
	state := a.stateFor(format)
	if id, ok := state.freeList.Pop(); ok {
		a.mu.Unlock()
		return id
	}
	id := a.nextLaneID
	a.nextLaneID++
	state.nameCounter++
	displayName := format.name(state.nameCounter)
	a.mu.Unlock()

	if a.onMetadata != nil {
		a.onMetadata(ThreadMetadata{LaneID: id, DisplayName: displayName, SortIndex: laneSortIndex})
	}
	return id
}

// Release returns id to format's free list. Callers must release exactly
// once; there is no reference counting.
func (a *LaneAllocator) Release(format LaneFormat, id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.stateFor(format)
	state.freeList.Push(id, -int(id))
}
