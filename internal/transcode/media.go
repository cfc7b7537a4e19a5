package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
)

// Media is a handle to an engine-ready transcoded file.
type Media struct {
	// Path is the transcoded WAV under the daemon temp directory.
	Path string

	// SourcePath is the original file the media was transcoded from.
	SourcePath string

	// Duration of the decoded audio.
	Duration time.Duration

	// Native format of the transcoded file.
	SampleRate int
	Channels   int
	BitDepth   int
}

// Open reads the WAV header at path and returns the media handle. A
// successful Open is the readability guarantee: the engine will be able
// to stream the same file.
func Open(path string) (*Media, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file: %s", filepath.Base(path))
	}

	// Derive duration from the PCM chunk alone; the decoder's Duration
	// helper sizes the whole RIFF chunk, header bytes included.
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to read wav data chunk: %w", err)
	}
	bytesPerSec := int64(dec.SampleRate) * int64(dec.NumChans) * int64(dec.BitDepth) / 8
	if bytesPerSec <= 0 {
		return nil, fmt.Errorf("invalid wav format in %s", filepath.Base(path))
	}
	dur := time.Duration(float64(dec.PCMLen()) / float64(bytesPerSec) * float64(time.Second))

	return &Media{
		Path:       path,
		Duration:   dur,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}, nil
}

// Remove deletes the transcoded file from disk. Removing media whose
// file is already gone is not an error.
func (m *Media) Remove() error {
	if m == nil || m.Path == "" {
		return nil
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
