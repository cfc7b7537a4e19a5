// Package spatial provides the shared coordinate types for source positioning.
package spatial

import (
	"fmt"
	"math"
)

// Position is a point in the listener-relative coordinate space.
// Units are meters, right-handed: +x is right, +y is up, and the area in
// front of the listener has negative z. The listener sits at the origin.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the distance from the listener at the origin.
func (p Position) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// IsFinite reports whether all components are finite numbers.
func (p Position) IsFinite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// String returns the position formatted for logs.
func (p Position) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}
