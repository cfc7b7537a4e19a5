// Package trajectory maps playback progress to source positions for the
// selected motion mode.
package trajectory

import (
	"math"

	"github.com/orbitaudio/spatiald/internal/spatial"
)

// Mode identifies a motion trajectory.
type Mode int

const (
	ModeManual Mode = iota
	ModeFrontBack
	ModeLeftRight
	ModeBottomTop
	ModeOrbit
	ModeParabola
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFrontBack:
		return "frontback"
	case ModeLeftRight:
		return "leftright"
	case ModeBottomTop:
		return "bottomtop"
	case ModeOrbit:
		return "orbit"
	case ModeParabola:
		return "parabola"
	default:
		return "manual"
	}
}

// ParseMode parses a wire name into a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "manual":
		return ModeManual, true
	case "frontback":
		return ModeFrontBack, true
	case "leftright":
		return ModeLeftRight, true
	case "bottomtop":
		return ModeBottomTop, true
	case "orbit":
		return ModeOrbit, true
	case "parabola":
		return ModeParabola, true
	default:
		return ModeManual, false
	}
}

// TimeDriven reports whether the mode keeps moving on elapsed time alone
// when the media duration is unknown.
func (m Mode) TimeDriven() bool {
	return m == ModeOrbit
}

// Bounds holds the coordinate limits for the bounded modes.
type Bounds struct {
	FrontZ      float64
	BackZ       float64
	LeftX       float64
	RightX      float64
	LowY        float64
	HighY       float64
	OrbitRadius float64
	RangeMeters float64
}

// Position returns the source position for the mode at the given progress.
// Progress outside [0,1] is clamped first. ModeManual has no trajectory of
// its own; it returns the rest position at heightY directly over the
// listener, and the held manual position lives with the caller.
func Position(mode Mode, progress, heightY float64, b Bounds) spatial.Position {
	p := ClampProgress(progress)

	switch mode {
	case ModeFrontBack:
		return spatial.Position{X: 0, Y: heightY, Z: lerp(b.FrontZ, b.BackZ, p)}
	case ModeLeftRight:
		return spatial.Position{X: lerp(b.LeftX, b.RightX, p), Y: heightY, Z: 0}
	case ModeBottomTop:
		return spatial.Position{X: 0, Y: lerp(b.LowY, b.HighY, p), Z: 0}
	case ModeOrbit:
		angle := 2 * math.Pi * p
		return spatial.Position{
			X: b.OrbitRadius * math.Cos(angle),
			Y: heightY,
			Z: b.OrbitRadius * math.Sin(angle),
		}
	case ModeParabola:
		// Front-to-back sweep with a parabolic climb: the height term is
		// quadratic in progress, so the source rises slowly at the front of
		// the path and fastest toward the back.
		return spatial.Position{
			X: 0,
			Y: b.LowY + (b.HighY-b.LowY)*p*p,
			Z: lerp(b.FrontZ, b.BackZ, p),
		}
	default:
		return spatial.Position{X: 0, Y: heightY, Z: 0}
	}
}

// Path samples the mode's trajectory as n+1 ordered positions from
// progress 0 to 1, for drawing by a client. ModeManual returns nil since
// it has no predetermined path.
func Path(mode Mode, n int, heightY float64, b Bounds) []spatial.Position {
	if mode == ModeManual || n <= 0 {
		return nil
	}

	points := make([]spatial.Position, 0, n+1)
	for i := 0; i <= n; i++ {
		points = append(points, Position(mode, float64(i)/float64(n), heightY, b))
	}
	return points
}

// ClampPlanar limits a manually set position to |x|,|z| <= rangeMeters.
// The height component passes through unchanged.
func ClampPlanar(pos spatial.Position, rangeMeters float64) spatial.Position {
	pos.X = clampAbs(pos.X, rangeMeters)
	pos.Z = clampAbs(pos.Z, rangeMeters)
	return pos
}

// SyntheticProgress derives a progress value for time-driven modes from
// elapsed seconds, wrapping every period seconds.
func SyntheticProgress(elapsed, period float64) float64 {
	if period <= 0 || elapsed < 0 {
		return 0
	}
	return math.Mod(elapsed, period) / period
}

// ClampProgress limits progress to [0,1].
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clampAbs(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
