// Package session orchestrates the single playback session: loads media
// through the transcoder, owns the motion mode, drives the trajectory
// tick loop while playing, and publishes state to observers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/orbitaudio/spatiald/internal/audio"
	"github.com/orbitaudio/spatiald/internal/config"
	"github.com/orbitaudio/spatiald/internal/media"
	"github.com/orbitaudio/spatiald/internal/spatial"
	"github.com/orbitaudio/spatiald/internal/trajectory"
	"github.com/orbitaudio/spatiald/internal/transcode"
)

// ErrSuperseded is returned from Load when a newer load or a reset made
// this request stale before its media could become active.
var ErrSuperseded = errors.New("load superseded by a newer request")

// Transcoder produces engine-ready media from an arbitrary source file.
// transcode.Transcoder is the real implementation; tests substitute fakes.
type Transcoder interface {
	Transcode(ctx context.Context, sourcePath string) (*transcode.Media, error)
}

// Snapshot is the observable session state published to subscribers on
// every mutation and on every tick while playing.
type Snapshot struct {
	IsPlaying  bool
	Progress   float64
	Duration   float64
	Position   spatial.Position
	Mode       string
	State      string
	SourcePath string
	Volume     float64
	Status     string
}

// Controller owns exactly one playback session. All state-machine
// operations (Load apply, Play, Stop, Reset) are serialized; transcodes
// run concurrently and only the newest load's result becomes active.
type Controller struct {
	// Serializes session mutations so graph reconfiguration never races
	// a completion hand-off
	opMu sync.Mutex

	mu          sync.Mutex
	mode        trajectory.Mode
	manualPos   spatial.Position
	activeMedia *transcode.Media
	sourcePath  string
	statusMsg   string

	// Generation counters: a stale transcode completion or playback
	// completion must never overwrite newer state
	loadGen    uint64
	playGen    uint64
	loadCancel context.CancelFunc

	// Tick loop lifecycle; stopTicking blocks until the loop has exited
	tickMu   sync.Mutex
	tickStop chan struct{}
	tickDone chan struct{}

	subsMu  sync.RWMutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64

	engine     *audio.Engine
	transcoder Transcoder
	mediaSess  media.Session

	// Static trajectory configuration, fixed at startup
	heightY      float64
	rangeMeters  float64
	bounds       trajectory.Bounds
	orbitPeriod  float64
	tickInterval time.Duration
}

// New creates a controller around the engine and transcoder. Trajectory
// bounds and the tick rate come from the config and are fixed for the
// daemon's lifetime.
func New(engine *audio.Engine, tc Transcoder, cfg *config.Config) *Controller {
	tj := cfg.Trajectory

	tickRate := cfg.Session.TickRateHz
	if tickRate <= 0 {
		tickRate = 60
	}

	return &Controller{
		engine:     engine,
		transcoder: tc,
		mode:       trajectory.ModeManual,
		manualPos:  spatial.Position{Y: tj.HeightY},
		statusMsg:  "idle",
		subs:       make(map[uint64]func(Snapshot)),

		heightY:     tj.HeightY,
		rangeMeters: tj.RangeMeters,
		bounds: trajectory.Bounds{
			FrontZ:      tj.FrontZ,
			BackZ:       tj.BackZ,
			LeftX:       tj.LeftX,
			RightX:      tj.RightX,
			LowY:        tj.LowY,
			HighY:       tj.HighY,
			OrbitRadius: tj.OrbitRadius,
			RangeMeters: tj.RangeMeters,
		},
		orbitPeriod:  tj.OrbitPeriodSec,
		tickInterval: time.Second / time.Duration(tickRate),
	}
}

// SetMediaSession attaches the OS media session and routes its transport
// commands back into the controller.
func (c *Controller) SetMediaSession(s media.Session) {
	c.mediaSess = s

	s.SetCommandHandler(media.CommandHandlerFunc(func(cmd media.Command, _ interface{}) error {
		log.Printf("[SESSION] Media session command: %s", cmd)
		switch cmd {
		case media.CmdPlay:
			return c.Play()
		case media.CmdPlayPause:
			if c.engine.IsPlaying() {
				return c.Stop()
			}
			return c.Play()
		case media.CmdPause, media.CmdStop:
			return c.Stop()
		default:
			return nil
		}
	}))
}

// Prepare sets up the engine graph. Called once at startup; safe to call
// again.
func (c *Controller) Prepare() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.engine.Prepare(c.heightY); err != nil {
		c.setStatus(fmt.Sprintf("prepare failed: %v", err))
		c.publish()
		return err
	}

	c.setStatus("ready")
	c.publish()
	return nil
}

// Load transcodes the source and makes the result the active media. The
// transcode runs concurrently with other loads; when loads overlap, only
// the newest request's media becomes active and the others return
// ErrSuperseded with their temp files removed.
func (c *Controller) Load(sourcePath string) error {
	if c.engine.State() == audio.StateUnprepared {
		return audio.ErrNotPrepared
	}

	c.mu.Lock()
	c.loadGen++
	gen := c.loadGen
	if c.loadCancel != nil {
		c.loadCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.loadCancel = cancel
	c.statusMsg = "transcoding " + filepath.Base(sourcePath)
	c.mu.Unlock()
	c.publish()

	log.Printf("[SESSION] Load requested: %s", sourcePath)
	md, err := c.transcoder.Transcode(ctx, sourcePath)
	cancel()

	// Apply phase: serialized against every other session mutation
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := gen == c.loadGen
	c.mu.Unlock()

	if !current {
		// A newer load or a reset won; drop the result and its temp file
		if md != nil {
			md.Remove()
		}
		log.Printf("[SESSION] Load superseded: %s", sourcePath)
		return ErrSuperseded
	}

	if err != nil {
		c.setStatus(fmt.Sprintf("load failed: %v", err))
		c.publish()
		log.Printf("[SESSION] Load failed: %v", err)
		return err
	}

	if err := c.engine.Load(md); err != nil {
		md.Remove()
		c.setStatus(fmt.Sprintf("load failed: %v", err))
		c.publish()
		log.Printf("[SESSION] Load failed: %v", err)
		return err
	}

	c.mu.Lock()
	prev := c.activeMedia
	c.activeMedia = md
	c.sourcePath = sourcePath
	c.statusMsg = "loaded"
	c.mu.Unlock()

	// The previous load's transcoded file is no longer reachable
	if prev != nil {
		prev.Remove()
	}

	if c.mediaSess != nil {
		c.mediaSess.UpdateMetadata(media.Metadata{
			Title:    filepath.Base(sourcePath),
			Duration: md.Duration,
		})
	}

	c.publish()
	log.Printf("[SESSION] Loaded %s (%.1fs)", sourcePath, md.Duration.Seconds())
	return nil
}

// Play starts playback of the loaded media from the beginning and starts
// the trajectory tick loop. A no-op while already playing.
func (c *Controller) Play() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.engine.IsPlaying() {
		return nil
	}

	c.mu.Lock()
	c.playGen++
	gen := c.playGen
	c.mu.Unlock()

	// The completion fires on the render goroutine; hop off it so the
	// engine can finish tearing the session down while we take the locks
	c.engine.SetOnComplete(func() {
		go c.finishPlayback(gen)
	})

	if err := c.engine.Play(); err != nil {
		c.setStatus(fmt.Sprintf("play failed: %v", err))
		c.publish()
		return err
	}

	// Place the source at the trajectory start before the first tick
	c.syncPosition()

	c.setStatus("playing")
	c.startTicking()
	c.updatePlaybackState(media.StatePlaying)
	c.publish()

	log.Printf("[SESSION] Playing")
	return nil
}

// Stop halts playback and resets progress. The tick loop has fully
// exited before Stop returns; no state is published afterward.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.playGen++ // A pending completion hand-off is now stale
	c.statusMsg = "stopped"
	c.mu.Unlock()

	c.stopTicking()
	err := c.engine.Stop()

	c.updatePlaybackState(media.StateStopped)
	c.publish()
	return err
}

// Reset stops playback, discards the loaded media and deletes its
// transcoded temp file, returning the session to its prepared state. The
// motion mode and held manual position survive.
func (c *Controller) Reset() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.loadGen++ // An in-flight load must not resurrect old media
	c.playGen++
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	md := c.activeMedia
	c.activeMedia = nil
	c.sourcePath = ""
	c.statusMsg = "idle"
	c.mu.Unlock()

	c.stopTicking()
	err := c.engine.Reset()

	if md != nil {
		md.Remove()
	}

	c.updatePlaybackState(media.StateStopped)
	c.publish()
	log.Printf("[SESSION] Reset")
	return err
}

// finishPlayback handles the natural end of file for the playback
// generation that scheduled it. Stale generations (a Stop or newer Play
// already happened) do nothing.
func (c *Controller) finishPlayback(gen uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if gen != c.playGen {
		c.mu.Unlock()
		return
	}
	c.statusMsg = "finished"
	c.mu.Unlock()

	c.stopTicking()

	c.updatePlaybackState(media.StateStopped)
	c.publish()
	log.Printf("[SESSION] Playback finished")
}

// SetMode selects the motion trajectory and repositions the source for
// it immediately, playing or not.
func (c *Controller) SetMode(name string) error {
	mode, ok := trajectory.ParseMode(name)
	if !ok {
		return fmt.Errorf("unknown motion mode: %q", name)
	}

	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()

	c.syncPosition()
	c.publish()
	log.Printf("[SESSION] Motion mode: %s", mode)
	return nil
}

// SetManualPosition holds the source at the given planar offset, clamped
// to the configured range, on the session's height plane. The position
// is applied immediately in manual mode and retained for a later switch
// back otherwise.
func (c *Controller) SetManualPosition(x, z float64) error {
	pos := spatial.Position{X: x, Y: c.heightY, Z: z}
	if !pos.IsFinite() {
		return fmt.Errorf("position must be finite")
	}
	pos = trajectory.ClampPlanar(pos, c.rangeMeters)

	c.mu.Lock()
	c.manualPos = pos
	manual := c.mode == trajectory.ModeManual
	c.mu.Unlock()

	if manual {
		c.engine.SetPosition(pos)
	}
	c.publish()
	return nil
}

// SetVolume sets playback volume in [0,1].
func (c *Controller) SetVolume(v float64) error {
	if err := c.engine.SetVolume(v); err != nil {
		return err
	}
	c.publish()
	return nil
}

// Path samples the active mode's trajectory as n+1 ordered positions for
// a client to draw. Manual mode has no predetermined path and returns
// nil.
func (c *Controller) Path(n int) []spatial.Position {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	return trajectory.Path(mode, n, c.heightY, c.bounds)
}

// Status returns the current session snapshot.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		Mode:       c.mode.String(),
		SourcePath: c.sourcePath,
		Status:     c.statusMsg,
	}
	c.mu.Unlock()

	snap.IsPlaying = c.engine.IsPlaying()
	snap.Progress = c.engine.Progress()
	snap.Duration = c.engine.Duration()
	snap.Position = c.engine.Position()
	snap.Volume = c.engine.Volume()
	snap.State = string(c.engine.State())
	return snap
}

// Subscribe registers an observer called with a snapshot on every
// session mutation and every tick while playing. Returns an id for
// Unsubscribe.
func (c *Controller) Subscribe(fn func(Snapshot)) uint64 {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return id
}

// Unsubscribe removes a subscriber.
func (c *Controller) Unsubscribe(id uint64) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	delete(c.subs, id)
}

// SetSpectrumCallback registers a callback for analyzer frames; nil
// disables analysis.
func (c *Controller) SetSpectrumCallback(cb audio.AudioDataCallback) {
	c.engine.SetAudioCallback(cb)
}

// Close stops everything and releases the engine. The active media's
// temp file is deleted.
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.loadGen++
	c.playGen++
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	md := c.activeMedia
	c.activeMedia = nil
	c.mu.Unlock()

	c.stopTicking()
	err := c.engine.Close()

	if md != nil {
		md.Remove()
	}
	return err
}

// publish pushes the current snapshot to all subscribers.
func (c *Controller) publish() {
	snap := c.Status()

	c.subsMu.RLock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) setStatus(msg string) {
	c.mu.Lock()
	c.statusMsg = msg
	c.mu.Unlock()
}

func (c *Controller) updatePlaybackState(state media.PlaybackState) {
	if c.mediaSess == nil {
		return
	}

	var pos time.Duration
	if elapsed, ok := c.engine.Elapsed(); ok {
		pos = time.Duration(elapsed * float64(time.Second))
	}
	c.mediaSess.UpdatePlaybackState(state, pos)
}

// syncPosition pushes the position implied by the current mode and
// progress into the engine.
func (c *Controller) syncPosition() {
	c.mu.Lock()
	mode := c.mode
	manual := c.manualPos
	c.mu.Unlock()

	if mode == trajectory.ModeManual {
		c.engine.SetPosition(manual)
		return
	}
	c.engine.SetPosition(trajectory.Position(mode, c.trajectoryProgress(mode), c.heightY, c.bounds))
}

// trajectoryProgress is the progress value the trajectory should be
// evaluated at. Time-driven modes keep moving on elapsed time when the
// media duration is unknown.
func (c *Controller) trajectoryProgress(mode trajectory.Mode) float64 {
	if c.engine.Duration() <= 0 && mode.TimeDriven() {
		if elapsed, ok := c.engine.Elapsed(); ok {
			return trajectory.SyntheticProgress(elapsed, c.orbitPeriod)
		}
		return 0
	}
	return c.engine.Progress()
}

// startTicking launches the tick loop. A no-op when already ticking.
func (c *Controller) startTicking() {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if c.tickStop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.tickStop = stop
	c.tickDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.tick()
			}
		}
	}()
}

// stopTicking halts the tick loop and waits for it to exit, so no tick
// runs after this returns.
func (c *Controller) stopTicking() {
	c.tickMu.Lock()
	stop, done := c.tickStop, c.tickDone
	c.tickStop, c.tickDone = nil, nil
	c.tickMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// tick samples the playback clock, evaluates the trajectory and pushes
// the position into the engine, then publishes the snapshot.
func (c *Controller) tick() {
	if !c.engine.IsPlaying() {
		return
	}

	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	if mode != trajectory.ModeManual {
		pos := trajectory.Position(mode, c.trajectoryProgress(mode), c.heightY, c.bounds)
		c.engine.SetPosition(pos)
	}

	c.publish()
}
