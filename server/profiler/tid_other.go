//go:build !linux

package profiler

import "os"

// currentLaneID has no portable OS-thread-id equivalent outside Linux;
// non-Linux builds fall back to the process id, which at least keeps all
// same-process events on one lane rather than fabricating distinct ones.
func currentLaneID() uint64 {
	return uint64(os.Getpid())
}
