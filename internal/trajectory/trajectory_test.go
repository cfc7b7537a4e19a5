package trajectory

import (
	"math"
	"testing"

	"github.com/orbitaudio/spatiald/internal/spatial"
)

const testHeight = 1.5

func testBounds() Bounds {
	return Bounds{
		FrontZ:      -1.0,
		BackZ:       1.0,
		LeftX:       -1.0,
		RightX:      1.0,
		LowY:        0.0,
		HighY:       2.0,
		OrbitRadius: 1.0,
		RangeMeters: 2.0,
	}
}

func positionsAlmostEqual(a, b spatial.Position) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

func TestPositionEndpoints(t *testing.T) {
	b := testBounds()

	tests := []struct {
		name     string
		mode     Mode
		progress float64
		want     spatial.Position
	}{
		{"frontback start", ModeFrontBack, 0, spatial.Position{X: 0, Y: testHeight, Z: b.FrontZ}},
		{"frontback end", ModeFrontBack, 1, spatial.Position{X: 0, Y: testHeight, Z: b.BackZ}},
		{"frontback middle", ModeFrontBack, 0.5, spatial.Position{X: 0, Y: testHeight, Z: 0}},
		{"leftright start", ModeLeftRight, 0, spatial.Position{X: b.LeftX, Y: testHeight, Z: 0}},
		{"leftright end", ModeLeftRight, 1, spatial.Position{X: b.RightX, Y: testHeight, Z: 0}},
		{"bottomtop start", ModeBottomTop, 0, spatial.Position{X: 0, Y: b.LowY, Z: 0}},
		{"bottomtop end", ModeBottomTop, 1, spatial.Position{X: 0, Y: b.HighY, Z: 0}},
		{"orbit start", ModeOrbit, 0, spatial.Position{X: b.OrbitRadius, Y: testHeight, Z: 0}},
		{"parabola start", ModeParabola, 0, spatial.Position{X: 0, Y: b.LowY, Z: b.FrontZ}},
		{"parabola end", ModeParabola, 1, spatial.Position{X: 0, Y: b.HighY, Z: b.BackZ}},
		{"manual rest position", ModeManual, 0.7, spatial.Position{X: 0, Y: testHeight, Z: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Position(tt.mode, tt.progress, testHeight, b)
			if !positionsAlmostEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPositionClampsProgress(t *testing.T) {
	b := testBounds()
	modes := []Mode{ModeFrontBack, ModeLeftRight, ModeBottomTop, ModeOrbit, ModeParabola}

	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			over := Position(mode, 1.5, testHeight, b)
			atOne := Position(mode, 1.0, testHeight, b)
			if !positionsAlmostEqual(over, atOne) {
				t.Errorf("Expected progress 1.5 to clamp to 1.0: got %v, want %v", over, atOne)
			}

			under := Position(mode, -0.3, testHeight, b)
			atZero := Position(mode, 0.0, testHeight, b)
			if !positionsAlmostEqual(under, atZero) {
				t.Errorf("Expected progress -0.3 to clamp to 0.0: got %v, want %v", under, atZero)
			}
		})
	}
}

func TestOrbitStaysOnRadius(t *testing.T) {
	b := testBounds()
	wantSq := b.OrbitRadius * b.OrbitRadius

	for i := 0; i <= 100; i++ {
		p := float64(i) / 100
		pos := Position(ModeOrbit, p, testHeight, b)
		gotSq := pos.X*pos.X + pos.Z*pos.Z
		if math.Abs(gotSq-wantSq) > 1e-9 {
			t.Errorf("At progress %.2f: expected x^2+z^2 = %f, got %f", p, wantSq, gotSq)
		}
		if pos.Y != testHeight {
			t.Errorf("At progress %.2f: expected y = %f, got %f", p, testHeight, pos.Y)
		}
	}
}

func TestMonotonicModes(t *testing.T) {
	b := testBounds()

	tests := []struct {
		name string
		mode Mode
		axis func(spatial.Position) float64
	}{
		{"frontback z increases", ModeFrontBack, func(p spatial.Position) float64 { return p.Z }},
		{"leftright x increases", ModeLeftRight, func(p spatial.Position) float64 { return p.X }},
		{"bottomtop y increases", ModeBottomTop, func(p spatial.Position) float64 { return p.Y }},
		{"parabola z increases", ModeParabola, func(p spatial.Position) float64 { return p.Z }},
		{"parabola y increases", ModeParabola, func(p spatial.Position) float64 { return p.Y }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := tt.axis(Position(tt.mode, 0, testHeight, b))
			for i := 1; i <= 50; i++ {
				p := float64(i) / 50
				cur := tt.axis(Position(tt.mode, p, testHeight, b))
				if cur < prev {
					t.Errorf("Expected monotonic increase, got %f after %f at progress %.2f", cur, prev, p)
				}
				prev = cur
			}
		})
	}
}

func TestPositionContinuity(t *testing.T) {
	b := testBounds()
	modes := []Mode{ModeFrontBack, ModeLeftRight, ModeBottomTop, ModeOrbit, ModeParabola}

	// With 1000 steps no mode should jump more than a few centimeters
	// between adjacent samples.
	const steps = 1000
	const maxStep = 0.05

	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			prev := Position(mode, 0, testHeight, b)
			for i := 1; i <= steps; i++ {
				cur := Position(mode, float64(i)/steps, testHeight, b)
				dx := cur.X - prev.X
				dy := cur.Y - prev.Y
				dz := cur.Z - prev.Z
				dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
				if dist > maxStep {
					t.Fatalf("Discontinuity at step %d: jumped %.4fm", i, dist)
				}
				prev = cur
			}
		})
	}
}

func TestPath(t *testing.T) {
	b := testBounds()

	points := Path(ModeParabola, 8, testHeight, b)
	if len(points) != 9 {
		t.Fatalf("Expected 9 points for 8 segments, got %d", len(points))
	}

	first := Position(ModeParabola, 0, testHeight, b)
	last := Position(ModeParabola, 1, testHeight, b)
	if !positionsAlmostEqual(points[0], first) {
		t.Errorf("Expected first point %v, got %v", first, points[0])
	}
	if !positionsAlmostEqual(points[8], last) {
		t.Errorf("Expected last point %v, got %v", last, points[8])
	}

	if got := Path(ModeManual, 8, testHeight, b); got != nil {
		t.Errorf("Expected nil path for manual mode, got %d points", len(got))
	}

	if got := Path(ModeOrbit, 0, testHeight, b); got != nil {
		t.Errorf("Expected nil path for zero samples, got %d points", len(got))
	}
}

func TestClampPlanar(t *testing.T) {
	tests := []struct {
		name  string
		in    spatial.Position
		limit float64
		want  spatial.Position
	}{
		{"inside untouched", spatial.Position{X: 0.5, Y: 1, Z: -0.5}, 2.0, spatial.Position{X: 0.5, Y: 1, Z: -0.5}},
		{"x clamped positive", spatial.Position{X: 3.0, Y: 1, Z: 0}, 2.0, spatial.Position{X: 2.0, Y: 1, Z: 0}},
		{"x clamped negative", spatial.Position{X: -3.0, Y: 1, Z: 0}, 2.0, spatial.Position{X: -2.0, Y: 1, Z: 0}},
		{"z clamped", spatial.Position{X: 0, Y: 1, Z: 5.5}, 2.0, spatial.Position{X: 0, Y: 1, Z: 2.0}},
		{"both clamped", spatial.Position{X: -9, Y: 0.25, Z: 9}, 1.0, spatial.Position{X: -1, Y: 0.25, Z: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampPlanar(tt.in, tt.limit)
			if !positionsAlmostEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSyntheticProgress(t *testing.T) {
	tests := []struct {
		name    string
		elapsed float64
		period  float64
		want    float64
	}{
		{"quarter through", 2.5, 10, 0.25},
		{"wraps after period", 12.5, 10, 0.25},
		{"at start", 0, 10, 0},
		{"at exact period", 10, 10, 0},
		{"zero period", 5, 0, 0},
		{"negative elapsed", -1, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SyntheticProgress(tt.elapsed, tt.period)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	modes := []Mode{ModeManual, ModeFrontBack, ModeLeftRight, ModeBottomTop, ModeOrbit, ModeParabola}
	for _, mode := range modes {
		got, ok := ParseMode(mode.String())
		if !ok {
			t.Errorf("Expected %q to parse", mode.String())
		}
		if got != mode {
			t.Errorf("Expected %v, got %v", mode, got)
		}
	}

	if _, ok := ParseMode("spiral"); ok {
		t.Error("Expected unknown mode to fail parsing")
	}
}
