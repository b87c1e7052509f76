package geom

import "math"

// Point represents a planar coordinate. The engine treats coordinates as
// Cartesian; all distances and curve positions are in the same unit as the
// coordinates themselves.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// lerp interpolates between a and b; t=0 returns a, t=1 returns b.
func lerp(a, b Point, t float64) Point {
	return Point{
		X: a.X + t*(b.X-a.X),
		Y: a.Y + t*(b.Y-a.Y),
	}
}

// cross returns the z component of (b-a) x (c-a). Positive when c is on the
// left of the directed line a->b.
func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}
