package profiler

// TaskData is a single recorded event. A TaskData is emitted at most once.
type TaskData struct {
	LaneID        uint64
	StartNanos    int64
	DurationNanos int64
	Type          TaskType
	Description   string

	// Action is non-nil when this TaskData was produced via ProfileAction.
	Action *ActionTaskData
}

// ActionTaskData extends TaskData with fields specific to build-action
// events. All three fields are optional.
type ActionTaskData struct {
	Mnemonic          string
	PrimaryOutputPath string
	TargetLabel       string
}

// ThreadMetadata names a lane for the trace viewer. Emitted once per
// allocated lane, never updated afterwards.
type ThreadMetadata struct {
	LaneID      uint64
	DisplayName string
	SortIndex   int
}

// SlowTask is the derived (duration, description, type) tuple kept by the
// top-K aggregators.
type SlowTask struct {
	DurationNanos int64
	Description   string
	Type          TaskType
}

// CounterSeries is a single named time series of per-bucket values, keyed
// by TaskType (only the *_COUNTS subset is meaningful) and densified to a
// fixed-width array of doubles at stop().
type CounterSeries struct {
	Type          TaskType
	BucketNanos   int64
	Values        []float64
	StartNanos    int64
}
