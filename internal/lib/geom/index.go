package geom

import (
	"sort"

	"github.com/tidwall/rtree"
)

// SegmentIndex accelerates nearest-point queries against one curve. It is
// built once from the axis-aligned bounding box of every segment and is
// read-only afterwards, so it can be shared by any number of concurrent
// queries.
type SegmentIndex struct {
	curve *Curve
	tree  rtree.RTreeG[int]
	// samples are vertex indices used to seed the search radius with an
	// upper bound of the true nearest distance.
	samples []int
}

// maxRadiusSamples bounds the number of vertices probed to seed the search
// radius; the first and last vertex are always included.
const maxRadiusSamples = 16

// NewSegmentIndex builds the spatial index for a curve.
func NewSegmentIndex(c *Curve) *SegmentIndex {
	ix := &SegmentIndex{curve: c}
	pts := c.points
	for seg := 0; seg < len(pts)-1; seg++ {
		a, b := pts[seg], pts[seg+1]
		ix.tree.Insert(
			[2]float64{min(a.X, b.X), min(a.Y, b.Y)},
			[2]float64{max(a.X, b.X), max(a.Y, b.Y)},
			seg,
		)
	}

	step := (len(pts) - 1) / (maxRadiusSamples - 1)
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(pts); i += step {
		ix.samples = append(ix.samples, i)
	}
	if last := len(pts) - 1; ix.samples[len(ix.samples)-1] != last {
		ix.samples = append(ix.samples, last)
	}
	return ix
}

// Candidates returns the ids of all segments whose bounding box intersects
// the axis-aligned box enclosing the disk of the given radius around p,
// sorted ascending.
func (ix *SegmentIndex) Candidates(p Point, radius float64) []int {
	var out []int
	ix.tree.Search(
		[2]float64{p.X - radius, p.Y - radius},
		[2]float64{p.X + radius, p.Y + radius},
		func(_, _ [2]float64, seg int) bool {
			out = append(out, seg)
			return true
		},
	)
	sort.Ints(out)
	return out
}

// Project returns the same result as Curve.Project but only examines
// segments near the query point. The initial radius is the distance from p
// to the nearest sampled vertex, which is an upper bound of the true
// nearest distance, so the disk is guaranteed to cover every optimal
// segment. The radius is doubled while no candidate is found; a full scan
// is the final fallback, so a valid curve always yields a result.
func (ix *SegmentIndex) Project(p Point) ProjectionResult {
	radius := ix.seedRadius(p)

	for i := 0; i < 4; i++ {
		if segs := ix.Candidates(p, radius); len(segs) > 0 {
			return ix.bestOf(p, segs)
		}
		radius *= 2
	}
	return ix.curve.Project(p)
}

// seedRadius returns the distance from p to the nearest sampled vertex.
func (ix *SegmentIndex) seedRadius(p Point) float64 {
	best := -1.0
	for _, i := range ix.samples {
		if d := p.Distance(ix.curve.points[i]); best < 0 || d < best {
			best = d
		}
	}
	return best
}

// bestOf picks the minimum-distance projection among candidate segments,
// breaking ties toward the smaller curve position.
func (ix *SegmentIndex) bestOf(p Point, segs []int) ProjectionResult {
	best := ProjectionResult{Distance: -1}
	for _, seg := range segs {
		cand := ix.curve.projectSegment(p, seg)
		if best.Distance < 0 || cand.Distance < best.Distance {
			best = cand
		}
	}
	return best
}
