package errkind

// Sentinel errors for common cases named in spec.md §7. Each embeds a
// Kind, so callers can branch with errors.Is against the sentinel
// itself or against any other *Error of the same Kind. Defined here
// (rather than in the root player package) so the internal components
// that actually detect these conditions — demux.Open, pipeline.Open,
// the seek worker — can return them directly without importing the
// root package and creating an import cycle; the root package
// re-exports these under its own names.
var (
	// ErrNoVideo is returned by demux.Open when the source has no video
	// stream at all.
	ErrNoVideo = &Error{Kind: StreamNotFound, Op: "demux.Open", Message: "file doesn't include any video stream"}

	// ErrNilAudioContext is returned by pipeline.Open when the source has
	// an audio stream but no audio.Context was supplied to attach a
	// device player to it.
	ErrNilAudioContext = &Error{Kind: DeviceInitFailed, Op: "pipeline.Open", Message: "audio output requested but no audio.Context is initialized"}

	// ErrTooManyChannels is returned by pipeline.Open when the source
	// audio stream has more than 2 channels.
	ErrTooManyChannels = &Error{Kind: UnsupportedFormat, Op: "pipeline.Open", Message: "audio streams with more than 2 channels are not supported"}

	// ErrAlreadySeeking is returned by Controller.Seek when a seek is
	// already pending and this call supersedes it; the newer request
	// still runs; this is reported to let callers distinguish that case
	// from a fresh request if they care to.
	ErrAlreadySeeking = &Error{Kind: AlreadyRunning, Op: "seek.Submit", Message: "a seek is already in progress; the newer request supersedes it"}

	// ErrClosed is returned by every Controller transport method once
	// Close has been called.
	ErrClosed = &Error{Kind: NotInitialized, Op: "pipeline.Controller", Message: "player is closed"}
)
