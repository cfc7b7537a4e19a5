package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Decoded samples per chunk pulled from the WAV decoder
const sourceChunk = 4096

// FileSource streams a WAV file as 16-bit stereo little-endian frames at
// a fixed output rate. Mono sources are duplicated to both channels,
// extra channels beyond the first pair are dropped, and a linear
// resampling stage adapts the media rate to the output rate when they
// differ.
type FileSource struct {
	file    *os.File
	decoder *wav.Decoder

	srcChannels int
	srcDepth    int

	chunk   *goaudio.IntBuffer
	resamp  *resampler
	pending []byte
	eof     bool
}

// OpenFileSource opens the WAV at path for streaming at outRate.
func OpenFileSource(path string, outRate int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("not a valid wav file: %s", path)
	}

	srcRate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	if srcRate <= 0 || channels <= 0 {
		f.Close()
		return nil, fmt.Errorf("unusable wav format: %dHz %dch", srcRate, channels)
	}

	return &FileSource{
		file:        f,
		decoder:     dec,
		srcChannels: channels,
		srcDepth:    int(dec.BitDepth),
		chunk: &goaudio.IntBuffer{
			Data:   make([]int, sourceChunk),
			Format: &goaudio.Format{NumChannels: channels, SampleRate: srcRate},
		},
		resamp: newResampler(srcRate, outRate),
	}, nil
}

// ReadStereo fills p with rendered-ready frames. Returns io.EOF once the
// file is fully consumed.
func (s *FileSource) ReadStereo(p []byte) (int, error) {
	for len(s.pending) == 0 && !s.eof {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}

	if len(s.pending) == 0 {
		return 0, io.EOF
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// fill decodes the next chunk into pending output bytes.
func (s *FileSource) fill() error {
	n, err := s.decoder.PCMBuffer(s.chunk)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode media: %w", err)
	}
	if n == 0 {
		s.eof = true
		return nil
	}

	frames := s.resamp.process(s.toStereo(s.chunk.Data[:n]))
	s.pending = frameBytes(frames)
	return nil
}

// toStereo converts decoded samples to interleaved 16-bit stereo.
func (s *FileSource) toStereo(data []int) []int16 {
	frames := len(data) / s.srcChannels
	out := make([]int16, 0, frames*2)
	for f := 0; f < frames; f++ {
		base := f * s.srcChannels
		left := scaleSample(data[base], s.srcDepth)
		right := left
		if s.srcChannels > 1 {
			right = scaleSample(data[base+1], s.srcDepth)
		}
		out = append(out, left, right)
	}
	return out
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// scaleSample shifts a sample at the source bit depth into 16-bit range.
func scaleSample(v, depth int) int16 {
	switch {
	case depth == 16 || depth == 0:
	case depth > 16:
		v >>= uint(depth - 16)
	default:
		v <<= uint(16 - depth)
	}

	if v > math.MaxInt16 {
		v = math.MaxInt16
	} else if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}

// frameBytes packs interleaved samples as little-endian bytes.
func frameBytes(frames []int16) []byte {
	out := make([]byte, len(frames)*2)
	for i, v := range frames {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// resampler converts interleaved stereo frames between sample rates by
// linear interpolation. It carries the last frame of each chunk so
// interpolation stays continuous across chunk boundaries.
type resampler struct {
	ratio  float64 // source frames consumed per output frame
	pos    float64 // read position relative to the carried frame
	last   [2]int16
	primed bool
}

func newResampler(srcRate, dstRate int) *resampler {
	return &resampler{ratio: float64(srcRate) / float64(dstRate)}
}

func (r *resampler) process(in []int16) []int16 {
	if r.ratio == 1 {
		return in
	}

	frames := len(in) / 2
	if frames == 0 {
		return nil
	}

	// Window starts with the carried frame so the first output of this
	// chunk can interpolate against the end of the previous one.
	window := in
	if r.primed {
		window = make([]int16, 0, (frames+1)*2)
		window = append(window, r.last[0], r.last[1])
		window = append(window, in...)
	}
	total := len(window) / 2

	out := make([]int16, 0, int(float64(frames)/r.ratio)*2+4)
	pos := r.pos
	for int(pos)+1 < total {
		i := int(pos)
		frac := pos - float64(i)
		out = append(out,
			lerpSample(window[i*2], window[i*2+2], frac),
			lerpSample(window[i*2+1], window[i*2+3], frac))
		pos += r.ratio
	}

	r.last = [2]int16{window[(total-1)*2], window[(total-1)*2+1]}
	r.primed = true
	r.pos = pos - float64(total-1)
	return out
}

func lerpSample(a, b int16, t float64) int16 {
	return int16(float64(a) + (float64(b)-float64(a))*t)
}
