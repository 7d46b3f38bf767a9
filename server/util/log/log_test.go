package log_test

import (
	"testing"

	"github.com/buildbuddy-io/buildprofiler/server/util/log"
)

func TestLogFunctionsDoNotPanic(t *testing.T) {
	log.Debugf("debug %d", 1)
	log.Infof("info %s", "x")
	log.Warningf("warn")
	log.Errorf("err: %v", "boom")
}
