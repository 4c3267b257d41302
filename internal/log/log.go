// Package log gives every internal component its own zerolog-backed
// Logger, tagged with the component name, mirroring the teacher's
// package-level pkgLogger/SetLogger seam (logger.go) without requiring
// internal packages to import the root player package (which would
// create an import cycle, since the root package imports them).
package log

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the same narrow seam used at the root of the module, widened
// with Warn/Error so severity actually reaches the underlying zerolog
// level (and therefore SetGlobalLevel filtering) instead of every
// message landing at one undifferentiated level.
type Logger interface {
	Printf(format string, v ...any) // informational, zerolog Info level
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

var console = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

type componentLogger struct {
	logger zerolog.Logger
}

func (c componentLogger) Printf(format string, v ...any) { c.logger.Info().Msgf(format, v...) }
func (c componentLogger) Warn(format string, v ...any)    { c.logger.Warn().Msgf(format, v...) }
func (c componentLogger) Error(format string, v ...any)   { c.logger.Error().Msgf(format, v...) }

// For returns the default Logger for a named component.
func For(component string) Logger {
	return componentLogger{logger: console.With().Str("component", component).Logger()}
}

// SetGlobalLevel adjusts the minimum severity logged across every
// component logger returned by For, e.g. to silence WARN-level chatter
// from live-stream jitter in production.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
