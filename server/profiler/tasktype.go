package profiler

import "strings"

// TaskType is a closed enumeration of task categories. The set is fixed at
// compile time; adding a category requires a code change, not configuration.
type TaskType int

const (
	Unknown TaskType = iota
	Info
	Action
	ActionCheck
	ActionCounts
	ActionCacheCounts
	Phase
	CriticalPathComponent
	VFSStat
	VFSRead
	VFSWrite
	VFSOpen
	VFSGlob
	VFSDeleteTree
	VFSDelete
)

type taskTypeInfo struct {
	description              string
	minDurationNanos         int64
	isVFS                    bool
	collectsSlowestInstances bool
}

const (
	millisecond = int64(1_000_000)
)

// taskTypeTable is the static registry backing every TaskType's behavioral
// flags. Every VFS type gets a 10ms floor (the original source's 50ms
// floor for lock-like waits has no counterpart, as no such type appears
// here); everything else records unconditionally (minDurationNanos == 0).
var taskTypeTable = map[TaskType]taskTypeInfo{
	Unknown:               {description: "Unknown event", minDurationNanos: 0, collectsSlowestInstances: false},
	Info:                  {description: "Info", minDurationNanos: 0, collectsSlowestInstances: false},
	Action:                {description: "Action processing", minDurationNanos: 0, collectsSlowestInstances: true},
	ActionCheck:           {description: "Action cache check", minDurationNanos: 0, collectsSlowestInstances: true},
	ActionCounts:          {description: "Action count", minDurationNanos: 0, collectsSlowestInstances: false},
	ActionCacheCounts:     {description: "Action cache count", minDurationNanos: 0, collectsSlowestInstances: false},
	Phase:                 {description: "Build phase marker", minDurationNanos: 0, collectsSlowestInstances: false},
	CriticalPathComponent: {description: "Critical path component", minDurationNanos: 0, collectsSlowestInstances: true},
	VFSStat:               {description: "VFS stat", minDurationNanos: 10 * millisecond, isVFS: true, collectsSlowestInstances: true},
	VFSRead:               {description: "VFS read", minDurationNanos: 10 * millisecond, isVFS: true, collectsSlowestInstances: true},
	VFSWrite:              {description: "VFS write", minDurationNanos: 10 * millisecond, isVFS: true, collectsSlowestInstances: true},
	VFSOpen:               {description: "VFS open", minDurationNanos: 10 * millisecond, isVFS: true, collectsSlowestInstances: true},
	VFSGlob:               {description: "VFS glob", minDurationNanos: 10 * millisecond, isVFS: true, collectsSlowestInstances: true},
	VFSDeleteTree:         {description: "VFS delete tree", minDurationNanos: 10 * millisecond, isVFS: true, collectsSlowestInstances: true},
	VFSDelete:             {description: "VFS delete", minDurationNanos: 10 * millisecond, isVFS: true, collectsSlowestInstances: true},
}

// AllTaskTypes returns every registered TaskType, in a stable order (by
// numeric value). Used by the facade to size per-type state at start().
func AllTaskTypes() []TaskType {
	types := make([]TaskType, 0, len(taskTypeTable))
	for t := Unknown; int(t) < len(taskTypeTable); t++ {
		types = append(types, t)
	}
	return types
}

func (t TaskType) info() taskTypeInfo {
	info, ok := taskTypeTable[t]
	if !ok {
		return taskTypeTable[Unknown]
	}
	return info
}

// Description is used verbatim as the emitted event's "cat" field.
func (t TaskType) Description() string { return t.info().description }

func (t TaskType) MinDurationNanos() int64 { return t.info().minDurationNanos }

func (t TaskType) IsVFS() bool { return t.info().isVFS }

func (t TaskType) CollectsSlowestInstances() bool { return t.info().collectsSlowestInstances }

// IsCountsSeries reports whether this type is one of the two *_COUNTS
// series keys used by CounterSeries / time-series bucketing.
func (t TaskType) IsCountsSeries() bool {
	return t == ActionCounts || t == ActionCacheCounts
}

// taskTypeNames maps the stable identifier a flag or config file names a
// TaskType by to its value; used by ParseTaskTypeNames.
var taskTypeNames = map[string]TaskType{
	"UNKNOWN":                 Unknown,
	"INFO":                    Info,
	"ACTION":                  Action,
	"ACTION_CHECK":            ActionCheck,
	"ACTION_COUNTS":           ActionCounts,
	"ACTION_CACHE_COUNTS":     ActionCacheCounts,
	"PHASE":                   Phase,
	"CRITICAL_PATH_COMPONENT": CriticalPathComponent,
	"VFS_STAT":                VFSStat,
	"VFS_READ":                VFSRead,
	"VFS_WRITE":               VFSWrite,
	"VFS_OPEN":                VFSOpen,
	"VFS_GLOB":                VFSGlob,
	"VFS_DELETE_TREE":         VFSDeleteTree,
	"VFS_DELETE":              VFSDelete,
}

// ParseTaskTypeNames resolves a list of TaskType identifiers (as named in
// taskTypeNames, case-insensitive) into TaskTypes, silently skipping
// anything unrecognized so a stray name in a flag value doesn't prevent
// the rest from taking effect.
func ParseTaskTypeNames(names []string) []TaskType {
	types := make([]TaskType, 0, len(names))
	for _, name := range names {
		if t, ok := taskTypeNames[strings.ToUpper(strings.TrimSpace(name))]; ok {
			types = append(types, t)
		}
	}
	return types
}
