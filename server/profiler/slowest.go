package profiler

import (
	"sync"

	"github.com/buildbuddy-io/buildprofiler/server/util/priority_queue"
)

const (
	slowestShardCount = 16
	slowestTopK       = 30
)

// slowestTaskShard is a bounded max-K set of the largest durations seen by
// this shard, implemented as a highest-priority-first queue keyed on
// -duration so the smallest of the retained durations is always at the root and can be evicted in O(log
// K) when a larger sample arrives.
type slowestTaskShard struct {
	mu    sync.Mutex
	heap  *priority_queue.PriorityQueue[SlowTask]
	count int
}

func newSlowestTaskShard() *slowestTaskShard {
	return &slowestTaskShard{heap: priority_queue.New[SlowTask]()}
}

func (s *slowestTaskShard) add(task SlowTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count < slowestTopK {
		s.heap.Push(task, -int(task.DurationNanos))
		s.count++
		return
	}
	min, ok := s.heap.Peek()
	if !ok || task.DurationNanos <= min.DurationNanos {
		return
	}
	s.heap.Pop()
	s.heap.Push(task, -int(task.DurationNanos))
}

func (s *slowestTaskShard) all() []SlowTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.GetAll()
}

func (s *slowestTaskShard) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heap = priority_queue.New[SlowTask]()
	s.count = 0
}

// SlowestTaskAggregator retains, per TaskType, the 30 longest-duration
// events seen across 16 independently-locked shards (keyed by laneId mod
// 16), merging into a single top-K only when Merge is called (by
// GetSlowestTasks); stop() clears the shards. This keeps the hot path
// from contending a single global lock.
type SlowestTaskAggregator struct {
	shards [slowestShardCount]*slowestTaskShard
}

func NewSlowestTaskAggregator() *SlowestTaskAggregator {
	agg := &SlowestTaskAggregator{}
	for i := range agg.shards {
		agg.shards[i] = newSlowestTaskShard()
	}
	return agg
}

func (a *SlowestTaskAggregator) Add(laneID uint64, task SlowTask) {
	shard := a.shards[laneID%slowestShardCount]
	shard.add(task)
}

// Merge aggregates all shards into a single top-K list, largest first.
func (a *SlowestTaskAggregator) Merge() []SlowTask {
	var all []SlowTask
	for _, shard := range a.shards {
		all = append(all, shard.all()...)
	}
	// Partial selection sort for the top slowestTopK entries is unnecessary
	// here since each shard already bounds itself to slowestTopK; a full
	// sort over at most shardCount*topK entries is cheap and simple.
	for i := 0; i < len(all); i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].DurationNanos > all[maxIdx].DurationNanos {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}
	if len(all) > slowestTopK {
		all = all[:slowestTopK]
	}
	return all
}

func (a *SlowestTaskAggregator) Clear() {
	for _, shard := range a.shards {
		shard.clear()
	}
}
