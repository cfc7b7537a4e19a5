package audio

import "errors"

// Engine lifecycle errors. Transcode-side failures live in internal/transcode.
var (
	// ErrNotPrepared means an operation that needs a prepared graph ran
	// before Prepare.
	ErrNotPrepared = errors.New("engine not prepared")

	// ErrOutputUnavailable means the audio output session could not be created.
	ErrOutputUnavailable = errors.New("audio output unavailable")

	// ErrEngineStart means the output session exists but refused to start.
	ErrEngineStart = errors.New("engine start failed")

	// ErrMediaUnavailable means the loaded media cannot be opened for reading.
	ErrMediaUnavailable = errors.New("media unavailable")

	// ErrNoMedia means playback was requested with nothing loaded.
	ErrNoMedia = errors.New("no media loaded")

	// ErrScheduleFailed means the render pass could not be scheduled.
	ErrScheduleFailed = errors.New("playback schedule failed")
)
