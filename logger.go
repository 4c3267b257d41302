package player

import "github.com/avcore/player/internal/log"

// Logger is the narrow seam the teacher package exposed, widened with
// Warn and Error: any type with those three printf-shaped methods
// (Printf, Warn, Error) can receive the root package's diagnostic output.
// Internal packages each hold their own package-level Logger so they can
// be silenced or redirected independently (mirrored from the teacher's
// logger.go); this one backs the root façade's own messages.
type Logger = log.Logger

var pkgLogger Logger = log.For("player")

// SetLogger replaces the logger used for the root package's own
// messages. Internal components keep their own loggers from
// internal/log and are not affected.
func SetLogger(logger Logger) {
	pkgLogger = logger
}
