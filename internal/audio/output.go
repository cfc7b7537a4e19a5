package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	defaultBitDepth   = 2 // 16-bit = 2 bytes

	// Maximum buffered audio ahead of the device.
	// 100ms at 44100Hz stereo 16-bit = 17640 bytes
	// Keeps the render clock (and the positions derived from it) close
	// to what the listener actually hears.
	maxBufferSize = 17640
)

// OtoOutput is an audio output using the Oto library. The device pulls
// rendered audio through Read; renderers push through Write, which
// throttles once maxBufferSize is queued. The render clock counts only
// bytes the device has pulled, so it tracks real playback rather than
// wall-clock time.
type OtoOutput struct {
	context    *oto.Context
	player     oto.Player // oto.Player is an interface, not a pointer
	sampleRate int
	channels   int
	mu         sync.Mutex
	buffer     *bytes.Buffer
	volume     float64 // 0.0 - 1.0
	halted     bool    // True after Halt - prevents auto-start on Write
	closed     bool    // True when output is closed

	// Render clock state
	renderedBytes int64
	clockStarted  bool // False until the device pulls the first real bytes

	analyzer *Analyzer // FFT + level analyzer for subscribed observers
}

// NewOtoOutput creates a new Oto-based audio output
func NewOtoOutput() (*OtoOutput, error) {
	return NewOtoOutputWithConfig(defaultSampleRate, defaultChannels)
}

// NewOtoOutputWithConfig creates a new Oto-based audio output with custom config
func NewOtoOutputWithConfig(sampleRate, channels int) (*OtoOutput, error) {
	// Create Oto context
	ctx, ready, err := oto.NewContext(sampleRate, channels, defaultBitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	// Wait for context to be ready
	<-ready

	output := &OtoOutput{
		context:    ctx,
		sampleRate: sampleRate,
		channels:   channels,
		buffer:     &bytes.Buffer{},
		volume:     1.0,
		analyzer:   NewAnalyzer(sampleRate, channels),
	}

	// Create player with the output as pull source
	output.player = ctx.NewPlayer(output)

	return output, nil
}

// Read implements io.Reader for the player to read from
func (o *OtoOutput) Read(p []byte) (n int, err error) {
	o.mu.Lock()

	// If closed, signal EOF to stop the player cleanly
	if o.closed {
		o.mu.Unlock()
		return 0, io.EOF
	}

	// If buffer is empty, return silence to keep the stream alive.
	// Silence is not rendered media, so the clock does not advance.
	if o.buffer.Len() == 0 {
		o.mu.Unlock()
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n, err = o.buffer.Read(p)
	if err != nil {
		o.mu.Unlock()
		return n, err
	}

	if n > 0 {
		o.renderedBytes += int64(n)
		o.clockStarted = true
	}

	// Snapshot for analysis before volume scaling, so subscribers see the
	// rendered mix with the matching clock reading. The analyzer runs
	// after o.mu is released: its callback is free to query this output.
	var analysis []byte
	var clock float64
	if o.analyzer != nil && o.analyzer.Active() && n > 0 {
		analysis = append([]byte(nil), p[:n]...)
		clock = float64(o.renderedBytes) / float64(o.sampleRate*o.channels*defaultBitDepth)
	}

	// Apply volume scaling to 16-bit PCM samples
	if o.volume < 1.0 && n > 0 {
		o.applyVolume(p[:n])
	}
	o.mu.Unlock()

	if analysis != nil {
		o.analyzer.Process(analysis, clock)
	}

	return n, nil
}

// applyVolume scales 16-bit PCM samples by the current volume
func (o *OtoOutput) applyVolume(data []byte) {
	vol := o.volume
	if vol >= 1.0 {
		return
	}

	// Process 16-bit samples (2 bytes per sample, little-endian)
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int16(float64(sample) * vol)
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

// SetVolume sets the playback volume (0.0 - 1.0)
func (o *OtoOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.volume = v
}

// GetVolume returns the current volume
func (o *OtoOutput) GetVolume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Write queues rendered PCM data for the device.
// Blocks while more than maxBufferSize is already queued so the renderer
// cannot run ahead of what the listener hears.
func (o *OtoOutput) Write(data []byte) (int, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return 0, errors.New("output closed")
		}
		if o.buffer.Len() < maxBufferSize {
			break
		}
		o.mu.Unlock()
		// Buffer full, wait for the device to consume some
		time.Sleep(10 * time.Millisecond)
	}
	defer o.mu.Unlock()

	n, err := o.buffer.Write(data)
	if err != nil {
		return n, err
	}

	// Only auto-start the player if not explicitly halted
	if o.player != nil && !o.player.IsPlaying() && !o.halted {
		o.player.Play()
	}

	return n, nil
}

// Start begins (or resumes) pulling audio from the buffer.
func (o *OtoOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errors.New("output closed")
	}

	o.halted = false
	if o.player != nil && !o.player.IsPlaying() {
		o.player.Play()
	}
	return nil
}

// Halt stops the device pull and discards any queued audio.
func (o *OtoOutput) Halt() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.halted = true // Set before pausing to prevent a racing Write restarting us
	if o.player != nil && o.player.IsPlaying() {
		o.player.Pause()
	}
	// Clear the buffer so old audio doesn't play when we start again
	o.buffer.Reset()
}

// ResetClock zeroes the render clock and discards queued audio, so the
// next playback starts from a clean timeline.
func (o *OtoOutput) ResetClock() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.renderedBytes = 0
	o.clockStarted = false
	o.buffer.Reset()
}

// RenderedSeconds reports how much media the device has pulled since the
// last clock reset. ok is false until the first real bytes are pulled
// after a (re)start; silence never advances the clock.
func (o *OtoOutput) RenderedSeconds() (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.clockStarted {
		return 0, false
	}
	bytesPerSecond := o.sampleRate * o.channels * defaultBitDepth
	return float64(o.renderedBytes) / float64(bytesPerSecond), true
}

// IsPlaying returns whether the device is currently pulling audio
func (o *OtoOutput) IsPlaying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.player != nil && o.player.IsPlaying()
}

// Close releases the audio output resources
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return err
		}
	}
	return nil
}

// SampleRate returns the sample rate
func (o *OtoOutput) SampleRate() int {
	return o.sampleRate
}

// Channels returns the number of channels
func (o *OtoOutput) Channels() int {
	return o.channels
}

// Bands returns the current frequency bands for subscribed observers
func (o *OtoOutput) Bands() []uint8 {
	if o.analyzer != nil {
		return o.analyzer.Bands()
	}
	return make([]uint8, numBands)
}

// Levels returns the current per-channel RMS levels
func (o *OtoOutput) Levels() [2]float64 {
	if o.analyzer != nil {
		return o.analyzer.Levels()
	}
	return [2]float64{}
}

// SetAudioCallback registers a callback for real-time analysis push.
// Analysis only runs while a callback is registered; pass nil to stop it.
func (o *OtoOutput) SetAudioCallback(cb AudioDataCallback) {
	if o.analyzer != nil {
		o.analyzer.SetCallback(cb)
	}
}

// Ensure OtoOutput implements io.Reader
var _ io.Reader = (*OtoOutput)(nil)
