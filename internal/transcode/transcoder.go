// Package transcode converts arbitrary input media into engine-ready WAV
// files using FFmpeg, with a native Go fallback for common formats.
package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

const (
	// Engine target format: 16-bit PCM, 44.1kHz stereo.
	targetSampleRate = 44100
	targetChannels   = 2

	// tempPrefix names transcoded files under the temp directory.
	tempPrefix = "spatiald-"
)

// Transcoder converts source media into engine-ready WAV files under a
// process-scoped temp directory.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
}

// New creates a transcoder writing into tempDir. ffmpeg and ffprobe are
// located on PATH if present; without them only mp3, ogg and wav sources
// can be handled.
func New(tempDir string) *Transcoder {
	t := &Transcoder{tempDir: tempDir}

	if p, err := exec.LookPath("ffmpeg"); err == nil {
		t.ffmpegPath = p
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		t.ffprobePath = p
	}

	if !t.HasBackend() {
		log.Printf("[TRANSCODE] ffmpeg not found in PATH, using native decoders only")
	}

	return t
}

// HasBackend reports whether the ffmpeg backend is available.
func (t *Transcoder) HasBackend() bool {
	return t.ffmpegPath != "" && t.ffprobePath != ""
}

// Transcode converts the source into a fresh engine-ready WAV file and
// returns its media handle. The destination name is unique per call so
// concurrent or repeated loads never collide. A source already in WAV
// format is still re-encoded; the cost is accepted for simplicity.
func (t *Transcoder) Transcode(ctx context.Context, sourcePath string) (*Media, error) {
	// Readability check before anything else
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	f.Close()

	dst := t.destPath()

	// Remove any stale file at the destination
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to clear destination: %w", err)
	}

	if t.HasBackend() {
		err = t.runFFmpeg(ctx, sourcePath, dst)
	} else {
		err = t.transcodeNative(ctx, sourcePath, dst)
	}
	if err != nil {
		os.Remove(dst)
		return nil, err
	}

	media, err := Open(dst)
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("transcoded file unreadable: %w", err)
	}
	media.SourcePath = sourcePath

	log.Printf("[TRANSCODE] %s -> %s (%.1fs, %dHz, %dch)",
		filepath.Base(sourcePath), filepath.Base(dst),
		media.Duration.Seconds(), media.SampleRate, media.Channels)

	return media, nil
}

// destPath returns a unique destination under the temp directory.
func (t *Transcoder) destPath() string {
	return filepath.Join(t.tempDir, tempPrefix+uuid.NewString()+".wav")
}

func (t *Transcoder) runFFmpeg(ctx context.Context, src, dst string) error {
	if err := t.probe(ctx, src); err != nil {
		return err
	}

	args := []string{
		"-v", "error",
		"-i", src,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(targetSampleRate),
		"-ac", strconv.Itoa(targetChannels),
		"-y",
		dst,
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &TranscodeError{ExitCode: exitCode, Output: stderr.String(), Err: err}
	}

	return nil
}

// probe verifies the source is decodable and carries an audio stream.
func (t *Transcoder) probe(ctx context.Context, src string) error {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		src,
	}

	cmd := exec.CommandContext(ctx, t.ffprobePath, args...)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: ffprobe cannot decode %s", ErrSourceUnreadable, filepath.Base(src))
	}

	var probeResult struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probeResult); err != nil {
		return fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, s := range probeResult.Streams {
		if s.CodecType == "audio" {
			return nil
		}
	}
	return &TranscodeError{Output: "no audio stream in source"}
}

// SweepTemp removes leftover transcoded files from dir and returns how
// many were deleted. The daemon calls this once at startup.
func SweepTemp(dir string) int {
	matches, err := filepath.Glob(filepath.Join(dir, tempPrefix+"*.wav"))
	if err != nil {
		return 0
	}

	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed
}
