package player

import (
	"github.com/avcore/player/internal/errkind"
)

// PlaybackError is the typed result every exported operation can return,
// per spec.md §7: a Kind from the taxonomy plus the original cause, so
// callers can branch on errors.As(err, &pe) with a pe of type
// *PlaybackError and inspect pe.Kind, or use errors.Is against one of
// the sentinels below. The type
// itself lives in internal/errkind so every internal component can
// construct one without importing this root package; PlaybackError is
// just that type under its public name.
type PlaybackError = errkind.Error

// A collection of sentinel errors actually returned along Open/Seek/
// the transport methods. Each is a *PlaybackError under the hood, so
// errors.Is also matches any other error of the same Kind, not just
// these exact values. Other format- or device-specific errors are also
// possible, wrapped as *PlaybackError.
var (
	ErrNoVideo         = errkind.ErrNoVideo
	ErrNilAudioContext = errkind.ErrNilAudioContext
	ErrTooManyChannels = errkind.ErrTooManyChannels
	ErrAlreadySeeking  = errkind.ErrAlreadySeeking
	ErrClosed          = errkind.ErrClosed
)
