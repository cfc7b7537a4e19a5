package transcode

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// transcodeNative decodes mp3, ogg and wav sources in-process and writes
// an engine-ready WAV at the source's native rate. Formats the native
// decoders cannot handle fail with ErrBackendUnavailable.
func (t *Transcoder) transcodeNative(ctx context.Context, src, dst string) error {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".mp3":
		return t.nativeMP3(ctx, src, dst)
	case ".ogg", ".oga":
		return t.nativeVorbis(ctx, src, dst)
	case ".wav", ".wave":
		return t.nativeWAV(ctx, src, dst)
	default:
		return fmt.Errorf("%w: no native decoder for %q", ErrBackendUnavailable, filepath.Ext(src))
	}
}

func (t *Transcoder) nativeMP3(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	out, enc, err := newWAVEncoder(dst, dec.SampleRate(), 2)
	if err != nil {
		return err
	}
	defer out.Close()

	// go-mp3 always emits 16-bit stereo little-endian
	buf := make([]byte, 8192)
	ints := make([]int, 0, len(buf)/2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := dec.Read(buf)
		if n > 0 {
			ints = ints[:0]
			for i := 0; i+1 < n; i += 2 {
				ints = append(ints, int(int16(buf[i])|int16(buf[i+1])<<8))
			}
			if werr := writeChunk(enc, ints, dec.SampleRate(), 2); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return &TranscodeError{Output: err.Error(), Err: err}
		}
	}

	return enc.Close()
}

func (t *Transcoder) nativeVorbis(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer f.Close()

	r, err := oggvorbis.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	channels := r.Channels()
	out, enc, err := newWAVEncoder(dst, r.SampleRate(), channels)
	if err != nil {
		return err
	}
	defer out.Close()

	samples := make([]float32, 4096*channels)
	ints := make([]int, 0, len(samples))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(samples)
		if n > 0 {
			ints = ints[:0]
			for i := 0; i < n; i++ {
				v := samples[i]
				if v > 1 {
					v = 1
				} else if v < -1 {
					v = -1
				}
				ints = append(ints, int(v*32767))
			}
			if werr := writeChunk(enc, ints, r.SampleRate(), channels); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return &TranscodeError{Output: err.Error(), Err: err}
		}
	}

	return enc.Close()
}

func (t *Transcoder) nativeWAV(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("%w: not a valid wav file", ErrSourceUnreadable)
	}

	srcRate := int(dec.SampleRate)
	srcCh := int(dec.NumChans)
	srcDepth := int(dec.BitDepth)

	out, enc, err := newWAVEncoder(dst, srcRate, srcCh)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := &audio.IntBuffer{
		Data:   make([]int, 8192),
		Format: &audio.Format{NumChannels: srcCh, SampleRate: srcRate},
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := dec.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			return &TranscodeError{Output: err.Error(), Err: err}
		}
		if n == 0 {
			break
		}

		if werr := writeChunk(enc, scaleTo16(buf.Data[:n], srcDepth), srcRate, srcCh); werr != nil {
			return werr
		}
		if err == io.EOF {
			break
		}
	}

	return enc.Close()
}

func newWAVEncoder(dst string, sampleRate, channels int) (*os.File, *wav.Encoder, error) {
	out, err := os.Create(dst)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create destination: %w", err)
	}
	// Audio format 1 = integer PCM
	enc := wav.NewEncoder(out, sampleRate, 16, channels, 1)
	return out, enc, nil
}

func writeChunk(enc *wav.Encoder, data []int, sampleRate, channels int) error {
	err := enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	})
	if err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	return nil
}

// scaleTo16 shifts samples at the source bit depth into 16-bit range.
func scaleTo16(data []int, srcDepth int) []int {
	if srcDepth == 16 || srcDepth == 0 {
		return data
	}

	shift := srcDepth - 16
	out := make([]int, len(data))
	if shift > 0 {
		for i, v := range data {
			out[i] = v >> uint(shift)
		}
	} else {
		for i, v := range data {
			out[i] = v << uint(-shift)
		}
	}
	return out
}
