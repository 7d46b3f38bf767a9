// Package log provides the module-wide structured logger. Every package
// that needs to log — including the profiler's fast path — goes through
// here rather than the bare stdlib `log` package or `fmt.Print*`, so that
// log level, formatting, and output sinks (e.g. the GCP writer in the
// `gcp` subpackage) stay centrally configurable.
package log

import (
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	level = flag.String("app.log_level", "info", "The log level to emit logs at. One of {debug, info, warn, error}.")

	logger zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// Configure applies the parsed `app.log_level` flag and adds any additional
// writers (such as the GCP `LevelWriter` from the `gcp` subpackage) to the
// logger's output. It's safe to call more than once; the last call wins.
func Configure(extraWriters ...io.Writer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(*level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	writers := make([]io.Writer, 0, len(extraWriters)+1)
	writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	for _, w := range extraWriters {
		if w != nil {
			writers = append(writers, w)
		}
	}
	logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
}

func Debugf(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}

func Infof(format string, args ...interface{}) {
	logger.Info().Msgf(format, args...)
}

func Warningf(format string, args ...interface{}) {
	logger.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Error().Msgf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatal().Msgf(format, args...)
}

func Fatal(msg string) {
	logger.Fatal().Msg(msg)
}

func Printf(format string, args ...interface{}) {
	logger.Info().Msgf(format, args...)
}
