// Package geom provides the planar curve model used by the linear
// referencing engine: polylines parameterized by arc length, nearest-point
// projection and the spatial index that accelerates it.
package geom

import (
	"errors"
	"fmt"
	"sort"
)

// OutOfRangeError reports a curve position outside [0, Length]. The engine
// never clamps implicitly; callers that want clamping use Curve.Clamp.
type OutOfRangeError struct {
	Position float64
	Length   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("curve position %g outside [0, %g]", e.Position, e.Length)
}

// Curve is an immutable polyline with arc-length parameterization. A curve
// position is a real number in [0, Length()] measured along the polyline
// from its first vertex. Curves are safe for concurrent use.
type Curve struct {
	points []Point
	cum    []float64 // cumulative arc length at each vertex; cum[0] == 0
}

// NewCurve builds a curve from its vertices. The geometry must contain at
// least two points with finite coordinates and a non-zero total length.
// The input slice is copied; the caller keeps ownership of it.
func NewCurve(points []Point) (*Curve, error) {
	if len(points) < 2 {
		return nil, errors.New("curve needs at least two points")
	}
	pts := make([]Point, len(points))
	copy(pts, points)

	cum := make([]float64, len(pts))
	for i, p := range pts {
		if !p.IsFinite() {
			return nil, fmt.Errorf("curve point %d is not finite", i)
		}
		if i > 0 {
			cum[i] = cum[i-1] + pts[i-1].Distance(p)
		}
	}
	if cum[len(cum)-1] == 0 {
		return nil, errors.New("curve has zero length")
	}
	return &Curve{points: pts, cum: cum}, nil
}

// Length returns the total arc length, computed once at construction.
func (c *Curve) Length() float64 {
	return c.cum[len(c.cum)-1]
}

// Points returns the curve vertices. The returned slice is shared and must
// not be modified.
func (c *Curve) Points() []Point {
	return c.points
}

// Clamp restricts a position to [0, Length].
func (c *Curve) Clamp(position float64) float64 {
	if position < 0 {
		return 0
	}
	if l := c.Length(); position > l {
		return l
	}
	return position
}

// PointAt returns the point at the given curve position by linear
// interpolation within the bracketing segment. Positions outside
// [0, Length], NaN included, return an OutOfRangeError.
func (c *Curve) PointAt(position float64) (Point, error) {
	if !(position >= 0 && position <= c.Length()) {
		return Point{}, &OutOfRangeError{Position: position, Length: c.Length()}
	}
	seg, t := c.locate(position)
	return lerp(c.points[seg], c.points[seg+1], t), nil
}

// locate finds the segment containing the position and the interpolation
// parameter within it. The position must already be in range.
func (c *Curve) locate(position float64) (seg int, t float64) {
	// Smallest vertex index whose cumulative length >= position.
	i := sort.SearchFloat64s(c.cum, position)
	if i == 0 {
		return 0, 0
	}
	if i == len(c.cum) {
		return len(c.points) - 2, 1
	}
	seg = i - 1
	span := c.cum[i] - c.cum[seg]
	if span == 0 {
		return seg, 0
	}
	return seg, (position - c.cum[seg]) / span
}

// SubCurve materializes the polyline between two curve positions: the
// interpolated endpoints plus every original vertex strictly between them.
// If from > to the result is the same path in reverse order. Equal positions
// yield a single point.
func (c *Curve) SubCurve(from, to float64) ([]Point, error) {
	reversed := from > to
	if reversed {
		from, to = to, from
	}
	start, err := c.PointAt(from)
	if err != nil {
		return nil, err
	}
	end, err := c.PointAt(to)
	if err != nil {
		return nil, err
	}
	if from == to {
		return []Point{start}, nil
	}

	out := []Point{start}
	for i, d := range c.cum {
		if d > from && d < to {
			out = append(out, c.points[i])
		}
	}
	out = append(out, end)

	if reversed {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// ProjectionResult describes the nearest point on a curve to a query point.
type ProjectionResult struct {
	// Position is the curve position of the nearest point.
	Position float64
	// Distance is the unsigned distance from the query point to Point.
	Distance float64
	// Point is the nearest point on the curve.
	Point Point
	// Offset is the signed lateral distance: positive when the query point
	// lies on the left of the curve's direction of travel, negative on the
	// right.
	Offset float64
}

// Project finds the nearest point on the curve to p over all segments,
// clamping the perpendicular foot to each segment's extent. Ties are broken
// toward the smaller curve position. This is the exact O(segments) scan;
// SegmentIndex.Project gives the accelerated equivalent.
func (c *Curve) Project(p Point) ProjectionResult {
	best := ProjectionResult{Distance: -1}
	for seg := 0; seg < len(c.points)-1; seg++ {
		cand := c.projectSegment(p, seg)
		if best.Distance < 0 || cand.Distance < best.Distance {
			best = cand
		}
	}
	return best
}

// projectSegment projects p onto one segment, returning the candidate
// nearest point with its curve position and signed offset.
func (c *Curve) projectSegment(p Point, seg int) ProjectionResult {
	a, b := c.points[seg], c.points[seg+1]
	span := c.cum[seg+1] - c.cum[seg]

	t := 0.0
	if span > 0 {
		// Perpendicular foot parameter, clamped to the segment extent.
		t = ((p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)) / (span * span)
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	foot := lerp(a, b, t)
	dist := p.Distance(foot)

	offset := dist
	if cross(a, b, p) < 0 {
		offset = -dist
	}
	return ProjectionResult{
		Position: c.cum[seg] + t*span,
		Distance: dist,
		Point:    foot,
		Offset:   offset,
	}
}

// IntersectSegment returns the first proper intersection, in curve order,
// of the segment a-b with the curve. Collinear overlaps are ignored.
func (c *Curve) IntersectSegment(a, b Point) (Point, bool) {
	for seg := 0; seg < len(c.points)-1; seg++ {
		p, q := c.points[seg], c.points[seg+1]
		if pt, ok := segmentIntersection(a, b, p, q); ok {
			return pt, true
		}
	}
	return Point{}, false
}

// segmentIntersection computes the single intersection point of segments
// a-b and p-q, if any. Collinear segments report no intersection.
func segmentIntersection(a, b, p, q Point) (Point, bool) {
	d1 := cross(a, b, p)
	d2 := cross(a, b, q)
	d3 := cross(p, q, a)
	d4 := cross(p, q, b)

	if d1 == d2 { // p-q parallel (or collinear) to a-b
		return Point{}, false
	}
	if (d1 > 0) == (d2 > 0) || (d3 > 0) == (d4 > 0) {
		return Point{}, false
	}
	t := d1 / (d1 - d2)
	return lerp(p, q, t), true
}
