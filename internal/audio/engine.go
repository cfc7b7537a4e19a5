// Package audio owns the playback graph: file source, spatial renderer,
// device output, and the render clock derived from what the device has
// actually pulled.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/orbitaudio/spatiald/internal/spatial"
	"github.com/orbitaudio/spatiald/internal/transcode"
)

// Rendered bytes pushed to the output per pass (~23ms at 44100Hz stereo)
const renderChunk = 4096

// State is the engine lifecycle state
type State string

const (
	StateUnprepared State = "unprepared"
	StatePrepared   State = "prepared"
	StateLoaded     State = "loaded"
	StatePlaying    State = "playing"
	StateStopped    State = "stopped"
)

// Output is the device-facing end of the audio graph. OtoOutput is the
// real implementation; tests substitute fakes.
type Output interface {
	Write(data []byte) (int, error)
	Start() error
	Halt()
	ResetClock()
	RenderedSeconds() (float64, bool)
	SetVolume(v float64)
	SampleRate() int
	Channels() int
	Close() error
}

// OutputFactory creates the output session when the engine prepares.
type OutputFactory func(sampleRate, channels int) (Output, error)

// OtoFactory creates the default speaker-backed output.
func OtoFactory(sampleRate, channels int) (Output, error) {
	return NewOtoOutputWithConfig(sampleRate, channels)
}

// Engine owns the audio graph and drives one playback at a time.
// Lifecycle: Unprepared -> Prepared -> Loaded -> Playing <-> Stopped,
// with Reset returning to Prepared. Operations that need a later state
// fail with ErrNotPrepared or ErrNoMedia rather than misbehaving.
type Engine struct {
	mu         sync.RWMutex
	playbackMu sync.Mutex // Serializes Prepare/Load/Play/Reset

	state    State
	media    *transcode.Media
	source   *FileSource
	renderer Renderer
	output   Output

	sampleRate int
	heightY    float64
	volume     float64

	// Session tracking - ensures only one render pass at a time
	sessionID   uint64        // Incremented on each scheduled playback
	sessionDone chan struct{} // Closed when the current render goroutine exits

	cancelFunc    context.CancelFunc // Cancels the current render goroutine
	wasManualStop bool               // True when playback was stopped, not finished

	// Fired exactly once on natural end of file, never after Stop
	onComplete func()

	newOutput OutputFactory
}

// NewEngine creates an engine that builds its output session with
// factory on Prepare. A nil factory uses the speaker-backed default.
func NewEngine(factory OutputFactory, sampleRate int) *Engine {
	if factory == nil {
		factory = OtoFactory
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	return &Engine{
		state:      StateUnprepared,
		volume:     1.0,
		sampleRate: sampleRate,
		newOutput:  factory,
	}
}

// SetOnComplete sets a callback fired when playback reaches the natural
// end of the loaded media.
func (e *Engine) SetOnComplete(callback func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = callback
}

// Prepare sets up the graph: creates the output session once, places the
// listener at the origin and the source at the default height. Safe to
// call repeatedly; stops any in-progress playback first.
func (e *Engine) Prepare(heightY float64) error {
	e.playbackMu.Lock()
	defer e.playbackMu.Unlock()

	e.mu.Lock()

	if e.state == StatePlaying {
		e.stopPlaybackLocked()
	}
	e.waitSessionLocked()

	if e.output == nil {
		out, err := e.newOutput(e.sampleRate, defaultChannels)
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrOutputUnavailable, err)
		}
		out.SetVolume(e.volume)
		e.output = out
	}

	e.heightY = heightY
	if e.renderer == nil {
		e.renderer = NewPanRenderer(heightY)
	} else {
		e.renderer.SetPosition(spatial.Position{Y: heightY})
	}

	if e.state == StateUnprepared {
		e.state = StatePrepared
	}
	e.mu.Unlock()

	log.Printf("[ENGINE] Prepared (source height %.2fm)", heightY)
	return nil
}

// Load stops any current playback, opens the media for streaming and
// rewires the graph for its format. The render clock is reset so
// progress starts from zero.
func (e *Engine) Load(media *transcode.Media) error {
	e.playbackMu.Lock()
	defer e.playbackMu.Unlock()

	e.mu.Lock()

	if e.state == StateUnprepared {
		e.mu.Unlock()
		return ErrNotPrepared
	}

	if e.state == StatePlaying {
		e.stopPlaybackLocked()
	}
	e.waitSessionLocked()

	src, err := OpenFileSource(media.Path, e.output.SampleRate())
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	if e.source != nil {
		e.source.Close()
	}
	e.source = src
	e.media = media

	e.output.ResetClock()
	if err := e.output.Start(); err != nil {
		e.source.Close()
		e.source = nil
		e.media = nil
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrEngineStart, err)
	}

	e.state = StateLoaded
	e.mu.Unlock()

	log.Printf("[ENGINE] Loaded %s (%.1fs, %dHz, %dch)",
		media.Path, media.Duration.Seconds(), media.SampleRate, media.Channels)
	return nil
}

// Play schedules the loaded media from its start on a render goroutine.
// Calling Play while already playing is a no-op; it never
// double-schedules.
func (e *Engine) Play() error {
	e.playbackMu.Lock()
	defer e.playbackMu.Unlock()

	e.mu.Lock()

	switch {
	case e.state == StateUnprepared:
		e.mu.Unlock()
		return ErrNotPrepared
	case e.state == StatePlaying:
		e.mu.Unlock()
		return nil
	case e.media == nil:
		e.mu.Unlock()
		return ErrNoMedia
	}

	// A previous render goroutine may still be winding down after Stop
	e.waitSessionLocked()

	// First play consumes the source opened by Load; replays reopen the
	// file so playback always starts from the beginning
	src := e.source
	e.source = nil
	if src == nil {
		var err error
		src, err = OpenFileSource(e.media.Path, e.output.SampleRate())
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
		}
	}

	e.output.ResetClock()
	if err := e.output.Start(); err != nil {
		src.Close()
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrScheduleFailed, err)
	}

	// Create new render session
	e.sessionID++
	e.sessionDone = make(chan struct{})
	currentSession := e.sessionID
	doneChan := e.sessionDone

	e.wasManualStop = false
	e.state = StatePlaying

	renderCtx, cancel := context.WithCancel(context.Background())
	e.cancelFunc = cancel

	duration := e.media.Duration
	e.mu.Unlock()

	// Render in background - goroutine closes doneChan when it exits
	go func() {
		defer close(doneChan)
		e.renderLoop(renderCtx, src, duration, currentSession)
	}()

	return nil
}

// renderLoop streams the source through the renderer into the output,
// waits for the buffered tail to drain on a clean end of file, then
// finalizes state. Runs until EOF, error, or cancellation.
func (e *Engine) renderLoop(ctx context.Context, src *FileSource, duration time.Duration, sessionID uint64) {
	log.Printf("[ENGINE] Render started (session %d)", sessionID)
	defer src.Close()

	buf := make([]byte, renderChunk)
	clean := false
	for {
		if ctx.Err() != nil {
			break
		}

		n, err := src.ReadStereo(buf)
		if n > 0 {
			e.renderer.Process(buf[:n])
			if _, werr := e.output.Write(buf[:n]); werr != nil {
				break
			}
		}
		if err == io.EOF {
			clean = true
			break
		}
		if err != nil {
			log.Printf("[ENGINE] Render error (session %d): %v", sessionID, err)
			break
		}
	}

	// The device is still draining what we buffered; wait it out so the
	// completion callback fires when the listener actually hears the end
	if clean && ctx.Err() == nil {
		rendered, _ := e.output.RenderedSeconds()
		if remaining := duration.Seconds() - rendered; remaining > 0 {
			wait := time.Duration(remaining*float64(time.Second)) + 500*time.Millisecond
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}

	e.mu.Lock()

	// Only update state if we're still the active session
	if e.sessionID != sessionID {
		e.mu.Unlock()
		log.Printf("[ENGINE] Render session %d superseded, exiting", sessionID)
		return
	}

	wasManual := e.wasManualStop
	callback := e.onComplete
	finished := clean && !wasManual

	if e.state == StatePlaying {
		e.state = StateStopped
	}
	if finished {
		// Natural end of file: halt the device and zero the clock so
		// progress reads 0
		e.output.Halt()
		e.output.ResetClock()
	}

	e.mu.Unlock()

	if finished {
		log.Printf("[ENGINE] Playback finished (session %d)", sessionID)
		if callback != nil {
			callback()
		}
	}
}

// Stop halts scheduled playback, clears queued audio and resets the
// render clock. Safe to call in any state; stopping while not playing is
// a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return nil
	}

	e.stopPlaybackLocked()
	return nil
}

func (e *Engine) stopPlaybackLocked() {
	e.state = StateStopped
	e.wasManualStop = true // Mark this as a manual stop

	// Cancel the render goroutine first
	if e.cancelFunc != nil {
		e.cancelFunc()
		e.cancelFunc = nil
	}

	// Brief pause to let an in-flight render write land
	time.Sleep(10 * time.Millisecond)

	// Now halt the device, discard queued audio and zero the clock
	if e.output != nil {
		e.output.Halt()
		e.output.ResetClock()
	}

	log.Printf("[ENGINE] Stopped playback")
}

// waitSessionLocked blocks until the current render goroutine has fully
// exited. Temporarily releases the state lock; callers must hold it.
func (e *Engine) waitSessionLocked() {
	oldDone := e.sessionDone
	if oldDone == nil {
		return
	}

	e.mu.Unlock()
	<-oldDone
	e.mu.Lock()
}

// Reset stops playback and discards the loaded media handle, returning
// the engine to its prepared state. The media file itself belongs to the
// caller.
func (e *Engine) Reset() error {
	e.playbackMu.Lock()
	defer e.playbackMu.Unlock()

	e.mu.Lock()

	if e.state == StatePlaying {
		e.stopPlaybackLocked()
	}
	e.waitSessionLocked()

	if e.source != nil {
		e.source.Close()
		e.source = nil
	}
	e.media = nil

	if e.output != nil {
		e.output.ResetClock()
	}
	if e.state != StateUnprepared {
		e.state = StatePrepared
	}
	e.mu.Unlock()

	log.Printf("[ENGINE] Reset")
	return nil
}

// SetPosition moves the source immediately, whether or not playback is
// active. Before Prepare there is no renderer and the call is a no-op.
func (e *Engine) SetPosition(pos spatial.Position) {
	e.mu.RLock()
	renderer := e.renderer
	e.mu.RUnlock()

	if renderer != nil {
		renderer.SetPosition(pos)
	}
}

// Position returns the current source position.
func (e *Engine) Position() spatial.Position {
	e.mu.RLock()
	renderer := e.renderer
	e.mu.RUnlock()

	if renderer != nil {
		return renderer.Position()
	}
	return spatial.Position{}
}

// Elapsed reports seconds of media the output has actually rendered, or
// ok=false before the first buffer renders.
func (e *Engine) Elapsed() (float64, bool) {
	e.mu.RLock()
	out := e.output
	e.mu.RUnlock()

	if out == nil {
		return 0, false
	}
	return out.RenderedSeconds()
}

// Progress returns rendered progress through the loaded media in [0,1].
func (e *Engine) Progress() float64 {
	elapsed, ok := e.Elapsed()
	if !ok {
		return 0
	}
	return progressFor(elapsed, e.Duration())
}

// progressFor clamps elapsed/duration to [0,1]. A duration that is
// unknown or invalid reports 0 rather than failing.
func progressFor(elapsed, duration float64) float64 {
	if duration <= 0 {
		return 0
	}

	p := elapsed / duration
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Duration returns the loaded media duration in seconds, 0 when nothing
// is loaded.
func (e *Engine) Duration() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.media == nil {
		return 0
	}
	return e.media.Duration.Seconds()
}

// State returns the engine lifecycle state
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsPlaying returns whether a render pass is in flight
func (e *Engine) IsPlaying() bool {
	return e.State() == StatePlaying
}

// SetVolume sets the playback volume (0.0 - 1.0)
func (e *Engine) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return errors.New("volume must be between 0.0 and 1.0")
	}

	e.mu.Lock()
	e.volume = volume
	if e.output != nil {
		e.output.SetVolume(volume)
	}
	e.mu.Unlock()

	return nil
}

// Volume returns the current volume
func (e *Engine) Volume() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.volume
}

// Bands returns the current analyzer bands for observers
func (e *Engine) Bands() []uint8 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if oto, ok := e.output.(*OtoOutput); ok {
		return oto.Bands()
	}
	return make([]uint8, numBands)
}

// Levels returns the current per-channel RMS levels
func (e *Engine) Levels() [2]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if oto, ok := e.output.(*OtoOutput); ok {
		return oto.Levels()
	}
	return [2]float64{}
}

// SetAudioCallback registers a callback for real-time analysis push.
// Analysis only runs while a callback is registered. Outputs without an
// analysis feed ignore the registration.
func (e *Engine) SetAudioCallback(cb AudioDataCallback) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if out, ok := e.output.(interface{ SetAudioCallback(AudioDataCallback) }); ok {
		out.SetAudioCallback(cb)
	}
}

// Close releases all resources
func (e *Engine) Close() error {
	e.mu.Lock()

	if e.state == StatePlaying {
		e.stopPlaybackLocked()
	}
	if e.source != nil {
		e.source.Close()
		e.source = nil
	}
	out := e.output
	e.mu.Unlock()

	if out != nil {
		return out.Close()
	}
	return nil
}
