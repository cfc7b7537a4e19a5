package audio

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeSourceWAV writes a 16-bit sine-wave WAV for streaming tests.
func writeSourceWAV(t *testing.T, path string, sampleRate, channels, frames int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	data := make([]int, frames*channels)
	for i := range data {
		frame := i / channels
		data[i] = int(8000 * math.Sin(2*math.Pi*440*float64(frame)/float64(sampleRate)))
	}

	err = enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	})
	if err != nil {
		t.Fatalf("Failed to write test wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close test wav: %v", err)
	}
}

// drainSource reads the whole stream, returning total bytes.
func drainSource(t *testing.T, src *FileSource) int {
	t.Helper()

	total := 0
	buf := make([]byte, 1024)
	for {
		n, err := src.ReadStereo(buf)
		total += n
		if err == io.EOF {
			return total
		}
		if err != nil {
			t.Fatalf("ReadStereo failed: %v", err)
		}
	}
}

func TestFileSourceDuplicatesMono(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mono.wav")
	writeSourceWAV(t, path, 8000, 1, 800)

	src, err := OpenFileSource(path, 8000)
	if err != nil {
		t.Fatalf("OpenFileSource failed: %v", err)
	}
	defer src.Close()

	buf := make([]byte, 4096)
	n, err := src.ReadStereo(buf)
	if err != nil {
		t.Fatalf("ReadStereo failed: %v", err)
	}
	if n != 800*4 {
		t.Fatalf("Expected %d bytes, got %d", 800*4, n)
	}

	for i := 0; i+3 < n; i += 4 {
		left := int16(buf[i]) | int16(buf[i+1])<<8
		right := int16(buf[i+2]) | int16(buf[i+3])<<8
		if left != right {
			t.Fatalf("Expected duplicated mono frame at %d: L=%d R=%d", i/4, left, right)
		}
	}

	if _, err := src.ReadStereo(buf); err != io.EOF {
		t.Errorf("Expected EOF after full stream, got %v", err)
	}
}

func TestFileSourcePassthroughStereo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stereo.wav")
	writeSourceWAV(t, path, 44100, 2, 441)

	src, err := OpenFileSource(path, 44100)
	if err != nil {
		t.Fatalf("OpenFileSource failed: %v", err)
	}
	defer src.Close()

	if total := drainSource(t, src); total != 441*4 {
		t.Errorf("Expected %d bytes, got %d", 441*4, total)
	}
}

func TestFileSourceUpsamples(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.wav")
	writeSourceWAV(t, path, 8000, 1, 800)

	src, err := OpenFileSource(path, 16000)
	if err != nil {
		t.Fatalf("OpenFileSource failed: %v", err)
	}
	defer src.Close()

	total := drainSource(t, src)
	frames := total / 4
	if frames < 1590 || frames > 1600 {
		t.Errorf("Expected roughly doubled frame count, got %d frames", frames)
	}
}

func TestFileSourceDownsamples(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fast.wav")
	writeSourceWAV(t, path, 44100, 2, 882)

	src, err := OpenFileSource(path, 22050)
	if err != nil {
		t.Fatalf("OpenFileSource failed: %v", err)
	}
	defer src.Close()

	total := drainSource(t, src)
	frames := total / 4
	if frames < 430 || frames > 445 {
		t.Errorf("Expected roughly halved frame count, got %d frames", frames)
	}
}

func TestOpenFileSourceErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := OpenFileSource(filepath.Join(dir, "missing.wav"), 44100); err == nil {
		t.Error("Expected error for missing file")
	}

	junk := filepath.Join(dir, "junk.wav")
	if err := os.WriteFile(junk, []byte("RIFFnope"), 0644); err != nil {
		t.Fatalf("Failed to write junk file: %v", err)
	}
	if _, err := OpenFileSource(junk, 44100); err == nil {
		t.Error("Expected error for invalid wav")
	}
}

func TestScaleSample(t *testing.T) {
	tests := []struct {
		name  string
		value int
		depth int
		want  int16
	}{
		{"16-bit passthrough", 12345, 16, 12345},
		{"unknown depth passthrough", -42, 0, -42},
		{"24-bit scales down", 1 << 20, 24, 1 << 12},
		{"8-bit scales up", 100, 8, 100 << 8},
		{"clamps positive overflow", 1 << 20, 16, math.MaxInt16},
		{"clamps negative overflow", -(1 << 20), 16, math.MinInt16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scaleSample(tt.value, tt.depth); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestResamplerContinuityAcrossChunks(t *testing.T) {
	r := newResampler(8000, 16000)

	// A ramp split across two chunks must interpolate smoothly over the
	// boundary: 0,100 then 200 gives midpoints 50 and 150.
	first := r.process([]int16{0, 0, 100, 100})
	second := r.process([]int16{200, 200})

	var got []int16
	for i := 0; i < len(first); i += 2 {
		got = append(got, first[i])
	}
	for i := 0; i < len(second); i += 2 {
		got = append(got, second[i])
	}

	want := []int16{0, 50, 100, 150}
	if len(got) != len(want) {
		t.Fatalf("Expected %d frames, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Frame %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestResamplerPassthroughAtSameRate(t *testing.T) {
	r := newResampler(44100, 44100)

	in := []int16{1, 2, 3, 4}
	out := r.process(in)

	if len(out) != len(in) {
		t.Fatalf("Expected passthrough length %d, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}
}
