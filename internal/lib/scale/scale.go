// Package scale implements anchor-based linear reference scales: the
// bidirectional mapping between human-meaningful measures ("anchor 10 plus
// 120") and arc-length positions along a curve.
package scale

import (
	"fmt"
	"math"
	"sort"
)

// Property is one key/value pair attached to an anchor. Properties are an
// ordered sequence; insertion order is preserved and duplicate keys are
// allowed by the wire format.
type Property struct {
	Key   string
	Value string
}

// Anchor is a named reference point tying a curve position to a scale
// position (e.g. the kilometre value painted on the marker).
type Anchor struct {
	Name          string
	CurvePosition float64
	ScalePosition float64
	Properties    []Property
}

// Measure locates a point on a scale relative to a named anchor. The offset
// is in curve-length units: moving by increasing offset moves along the
// curve in the direction the anchor's own scale increases locally.
type Measure struct {
	Anchor string  `json:"anchor"`
	Offset float64 `json:"offset"`
}

func (m Measure) String() string {
	return fmt.Sprintf("%s+%g", m.Anchor, m.Offset)
}

// UnknownAnchorError reports a measure referencing an anchor name absent
// from the scale.
type UnknownAnchorError struct {
	Scale  string
	Anchor string
}

func (e *UnknownAnchorError) Error() string {
	return fmt.Sprintf("scale %q has no anchor named %q", e.Scale, e.Anchor)
}

// Scale is one linear reference method's measure<->position mapping: an
// ordered sequence of anchors over a single curve. The mapping between
// consecutive anchors is piecewise, local to each bracketing pair, which is
// what allows scale resets and discontinuities. Immutable once built.
type Scale struct {
	id      string
	anchors []Anchor
	byName  map[string]int
}

// New builds a scale from anchors sorted strictly ascending by curve
// position. Disorder, duplicate curve positions and duplicate names are
// construction errors; callers (the payload loader) surface them as
// malformed data rather than silently reordering.
func New(id string, anchors []Anchor) (*Scale, error) {
	if len(anchors) == 0 {
		return nil, fmt.Errorf("scale %q has no anchors", id)
	}
	byName := make(map[string]int, len(anchors))
	for i, a := range anchors {
		if !isFinite(a.CurvePosition) || !isFinite(a.ScalePosition) {
			return nil, fmt.Errorf("scale %q anchor %q has a non-finite position", id, a.Name)
		}
		if i > 0 && anchors[i-1].CurvePosition >= a.CurvePosition {
			return nil, fmt.Errorf(
				"scale %q anchors not strictly sorted by curve position: %q (%g) after %q (%g)",
				id, a.Name, a.CurvePosition, anchors[i-1].Name, anchors[i-1].CurvePosition)
		}
		if _, dup := byName[a.Name]; dup {
			return nil, fmt.Errorf("scale %q has duplicate anchor name %q", id, a.Name)
		}
		byName[a.Name] = i
	}
	return &Scale{id: id, anchors: anchors, byName: byName}, nil
}

// ID returns the scale identifier.
func (s *Scale) ID() string {
	return s.id
}

// Anchors returns the anchors ordered by curve position. The returned slice
// is shared and must not be modified.
func (s *Scale) Anchors() []Anchor {
	return s.anchors
}

// Anchor returns the anchor with the given name.
func (s *Scale) Anchor(name string) (Anchor, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Anchor{}, false
	}
	return s.anchors[i], true
}

// PositionOf converts a measure to a curve position. The result is not
// clamped: measures beyond the curve propagate later as out-of-range from
// the curve itself.
func (s *Scale) PositionOf(m Measure) (float64, error) {
	i, ok := s.byName[m.Anchor]
	if !ok {
		return 0, &UnknownAnchorError{Scale: s.id, Anchor: m.Anchor}
	}
	return s.anchors[i].CurvePosition + s.direction(i)*m.Offset, nil
}

// MeasureAt converts a curve position to a measure relative to the greatest
// anchor at or before the position (the first anchor before the span, the
// last after it). The offset is signed by the anchor's local scale
// direction so that PositionOf(MeasureAt(p)) == p; positions outside the
// anchor span extrapolate, yielding negative or over-span offsets.
func (s *Scale) MeasureAt(position float64) Measure {
	// Greatest anchor with CurvePosition <= position.
	i := sort.Search(len(s.anchors), func(i int) bool {
		return s.anchors[i].CurvePosition > position
	}) - 1
	if i < 0 {
		i = 0
	}
	a := s.anchors[i]
	return Measure{
		Anchor: a.Name,
		Offset: s.direction(i) * (position - a.CurvePosition),
	}
}

// direction returns the local scale direction at anchor i: +1 when the
// scale increases with the curve position, -1 when it decreases. Derived
// from the curve-position-adjacent neighbor; a single-anchor scale
// increases with the curve.
func (s *Scale) direction(i int) float64 {
	var neighbor int
	if i+1 < len(s.anchors) {
		neighbor = i + 1
	} else if i > 0 {
		neighbor = i - 1
	} else {
		return 1
	}
	// The anchors are ordered by curve position, so the sign of the scale
	// delta toward the later anchor is the local direction.
	lo, hi := i, neighbor
	if hi < lo {
		lo, hi = hi, lo
	}
	if s.anchors[hi].ScalePosition >= s.anchors[lo].ScalePosition {
		return 1
	}
	return -1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
