package gaze

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// pointEpsilon is the per-component tolerance used by Point.Equal.
const pointEpsilon = 1e-3

// Point is a 2D coordinate in screen space (pixels) or normalized
// sensor space, depending on the field it is stored in.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Mul scales both components by k.
func (p Point) Mul(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// Div divides both components by k.
func (p Point) Div(k float64) Point {
	return Point{X: p.X / k, Y: p.Y / k}
}

// Distance returns the Euclidean distance between p and o.
func (p Point) Distance(o Point) float64 {
	return planar.Distance(p.Orb(), o.Orb())
}

// Midpoint returns the point halfway between p and o.
func (p Point) Midpoint(o Point) Point {
	return FromOrb(orb.LineString{p.Orb(), o.Orb()}.Bound().Center())
}

// Equal reports whether both components differ by less than 1e-3.
func (p Point) Equal(o Point) bool {
	return math.Abs(p.X-o.X) < pointEpsilon && math.Abs(p.Y-o.Y) < pointEpsilon
}

// IsZero reports whether p is exactly the origin.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Orb converts p to an orb.Point.
func (p Point) Orb() orb.Point {
	return orb.Point{p.X, p.Y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%f, %f)", p.X, p.Y)
}

// FromOrb converts an orb.Point to a Point.
func FromOrb(o orb.Point) Point {
	return Point{X: o[0], Y: o[1]}
}
