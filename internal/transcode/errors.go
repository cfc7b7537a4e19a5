package transcode

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the transcoder.
var (
	// ErrSourceUnreadable means the source file cannot be opened or is not
	// a decodable media container.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrBackendUnavailable means ffmpeg is not installed and no native
	// decoder can handle the source format.
	ErrBackendUnavailable = errors.New("transcode backend unavailable")
)

// TranscodeError carries the diagnostic from a failed transcode run.
type TranscodeError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("transcode failed (exit %d)", e.ExitCode)
	if line := lastLine(e.Output); line != "" {
		msg += ": " + line
	}
	return msg
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// lastLine returns the final non-empty line of the backend output, which
// is where ffmpeg reports the actual failure.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
