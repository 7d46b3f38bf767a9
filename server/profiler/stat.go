package profiler

import (
	"github.com/buildbuddy-io/buildprofiler/server/util/histogram"
)

const (
	histogramBuckets  = 20
	histogramBucketMs = int64(1)
)

// HistogramSnapshot is the immutable view returned by StatRecorder.Snapshot.
// Counts[i] holds the number of samples observed in bucket i (durations
// [i, i+1) ms); Counts[len(Counts)-1] is the overflow bucket for every
// duration >= histogramBuckets ms.
type HistogramSnapshot struct {
	Name   string
	Counts []int64
	Total  int64
}

// StatRecorder records per-task-type duration samples into a fixed-width
// histogram. One is allocated per non-VFS TaskType; VFS types instead fan
// out through a PredicateBasedStatRecorder to per-path-family sub-recorders.
type StatRecorder interface {
	Add(durationMillis int64, description string)
	Snapshot() []HistogramSnapshot
}

type singleStatRecorder struct {
	name string
	h    *histogram.Histogram
}

func newSingleStatRecorder(name string) *singleStatRecorder {
	return &singleStatRecorder{
		name: name,
		h: histogram.NewWithOptions(histogram.Options{
			NumBuckets:       histogramBuckets,
			FixedBucketWidth: histogramBucketMs,
		}),
	}
}

func (s *singleStatRecorder) Add(durationMillis int64, _ string) {
	s.h.Add(durationMillis)
}

func (s *singleStatRecorder) Snapshot() []HistogramSnapshot {
	counts, total := s.h.Snapshot()
	return []HistogramSnapshot{{Name: s.name, Counts: counts, Total: total}}
}

// vfsPredicate routes a VFS event to a sub-recorder based on the path it
// names. The cascade is ordered; the first matching predicate wins.
type vfsPredicate struct {
	name     string
	matches  func(description string) bool
	recorder *singleStatRecorder
}

// PredicateBasedStatRecorder implements the VFS predicate cascade described
// in the histogram design: an ordered list of (predicate, sub-recorder)
// pairs, the first match routing the sample.
type PredicateBasedStatRecorder struct {
	cascade []vfsPredicate
}

// NewVFSStatRecorder builds the predicate cascade used for every VFS task
// type: build-relevant source files (BUILD/WORKSPACE/.bzl) first, compiled
// artifacts second, everything else last. The thresholds are
// implementation-defined but stable across runs, as required.
func NewVFSStatRecorder(taskName string) *PredicateBasedStatRecorder {
	return &PredicateBasedStatRecorder{
		cascade: []vfsPredicate{
			{name: taskName + " (build files)", matches: isBuildFile, recorder: newSingleStatRecorder(taskName + " (build files)")},
			{name: taskName + " (artifacts)", matches: isArtifactFile, recorder: newSingleStatRecorder(taskName + " (artifacts)")},
			{name: taskName + " (other)", matches: func(string) bool { return true }, recorder: newSingleStatRecorder(taskName + " (other)")},
		},
	}
}

func isBuildFile(description string) bool {
	return hasAnySuffix(description, ".bzl", "BUILD", "BUILD.bazel", "WORKSPACE", "WORKSPACE.bazel")
}

func isArtifactFile(description string) bool {
	return hasAnySuffix(description, ".so", ".jar", ".class", ".a", ".o")
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && s[len(s)-len(suf):] == suf {
			return true
		}
	}
	return false
}

func (p *PredicateBasedStatRecorder) Add(durationMillis int64, description string) {
	for _, c := range p.cascade {
		if c.matches(description) {
			c.recorder.Add(durationMillis, description)
			return
		}
	}
}

func (p *PredicateBasedStatRecorder) Snapshot() []HistogramSnapshot {
	snapshots := make([]HistogramSnapshot, 0, len(p.cascade))
	for _, c := range p.cascade {
		snapshots = append(snapshots, c.recorder.Snapshot()...)
	}
	return snapshots
}

// NewStatRecorder returns the appropriate StatRecorder implementation for t.
func NewStatRecorder(t TaskType) StatRecorder {
	if t.IsVFS() {
		return NewVFSStatRecorder(t.Description())
	}
	return newSingleStatRecorder(t.Description())
}
