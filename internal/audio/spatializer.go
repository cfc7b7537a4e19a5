package audio

import (
	"math"
	"sync"

	"github.com/orbitaudio/spatiald/internal/spatial"
)

// Renderer places a source in the listener's space and renders the
// stream written through it. Process rewrites 16-bit stereo
// little-endian frames in place.
type Renderer interface {
	SetPosition(pos spatial.Position)
	Position() spatial.Position
	Process(data []byte)
}

// PanRenderer renders a source position with equal-power panning and
// distance attenuation. The listener sits at the origin facing -z.
// Incoming stereo frames are mixed to mono first, then placed: azimuth
// drives the left/right power split and distance beyond one meter
// attenuates at 1/d.
type PanRenderer struct {
	mu  sync.RWMutex
	pos spatial.Position
}

// NewPanRenderer creates a renderer with the source straight overhead
// of the listener at the given height.
func NewPanRenderer(heightY float64) *PanRenderer {
	return &PanRenderer{pos: spatial.Position{Y: heightY}}
}

// SetPosition moves the source. Non-finite positions are dropped.
func (r *PanRenderer) SetPosition(pos spatial.Position) {
	if !pos.IsFinite() {
		return
	}

	r.mu.Lock()
	r.pos = pos
	r.mu.Unlock()
}

// Position returns the current source position.
func (r *PanRenderer) Position() spatial.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pos
}

// Process renders the frames at the current source position.
func (r *PanRenderer) Process(data []byte) {
	r.mu.RLock()
	pos := r.pos
	r.mu.RUnlock()

	// Azimuth 0 is straight ahead (-z), positive toward the right ear.
	azimuth := math.Atan2(pos.X, -pos.Z)
	pan := (1 + math.Sin(azimuth)) / 2

	gain := 1.0
	if d := pos.Norm(); d > 1 {
		gain = 1 / d
	}

	leftGain := gain * math.Sqrt(1-pan)
	rightGain := gain * math.Sqrt(pan)

	// 16-bit stereo little-endian frames, 4 bytes each
	for i := 0; i+3 < len(data); i += 4 {
		left := int16(data[i]) | int16(data[i+1])<<8
		right := int16(data[i+2]) | int16(data[i+3])<<8
		mono := (float64(left) + float64(right)) / 2

		outLeft := int16(mono * leftGain)
		outRight := int16(mono * rightGain)

		data[i] = byte(outLeft)
		data[i+1] = byte(outLeft >> 8)
		data[i+2] = byte(outRight)
		data[i+3] = byte(outRight >> 8)
	}
}

var _ Renderer = (*PanRenderer)(nil)
