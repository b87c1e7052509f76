// Package lrs aggregates the curves, scales and spatial indexes loaded from
// one binary payload and exposes the public query surface of the linear
// referencing engine: lookup (point to measure), resolve (measure to point)
// and range resolution.
package lrs

import (
	"fmt"

	"github.com/dpup/linref/internal/lib/geom"
	"github.com/dpup/linref/internal/lib/scale"
	"github.com/dpup/linref/internal/lib/wire"
)

// UnknownLrmError reports a query naming an LRM id absent from the LRS.
type UnknownLrmError struct {
	ID string
}

func (e *UnknownLrmError) Error() string {
	return fmt.Sprintf("no LRM with id %q", e.ID)
}

// Projection is the result of projecting a query point onto an LRM's curve.
type Projection struct {
	// Point is the nearest point on the curve.
	Point geom.Point `json:"point"`
	// Measure expresses Point on the LRM's scale.
	Measure scale.Measure `json:"measure"`
	// Distance is the unsigned distance from the query point to Point.
	Distance float64 `json:"distance"`
	// Offset is the same distance signed by side: positive left of the
	// curve's direction of travel, negative right.
	Offset float64 `json:"offset"`
}

// lrm binds one scale to its curve. Curves may be shared between LRMs, so
// the entry holds the curve index into the shared arena rather than its own
// copy.
type lrm struct {
	id       string
	curveIdx int
	scale    *scale.Scale
}

// LRS is a loaded linear referencing system. It is immutable after Load and
// safe to share across any number of concurrent callers: every query is a
// pure function of the LRS and its inputs.
type LRS struct {
	curves  []*geom.Curve
	indexes []*geom.SegmentIndex
	lrms    []lrm
	byID    map[string]int
}

// Load parses a binary payload and builds the queryable system: one curve
// and spatial index per referenced geometry, one scale per LRM. Structural
// errors, anchors out of order and anchors outside their curve all fail
// with a wire.MalformedError; no partial LRS is ever returned. Load only
// parses, it performs no I/O.
func Load(data []byte) (*LRS, error) {
	payload, err := wire.Open(data)
	if err != nil {
		return nil, err
	}

	// Everything is copied out of the payload into owned structures, so the
	// input buffer is not retained past Load.
	l := &LRS{
		curves:  make([]*geom.Curve, payload.CurveCount()),
		indexes: make([]*geom.SegmentIndex, payload.CurveCount()),
		byID:    make(map[string]int, payload.LrmCount()),
	}

	for i := 0; i < payload.CurveCount(); i++ {
		view := payload.Curve(i)
		pts := make([]geom.Point, view.PointCount())
		for j := range pts {
			pts[j].X, pts[j].Y = view.Point(j)
		}
		curve, err := geom.NewCurve(pts)
		if err != nil {
			return nil, &wire.MalformedError{Offset: -1, Reason: fmt.Sprintf("curve %d: %v", i, err)}
		}
		l.curves[i] = curve
		l.indexes[i] = geom.NewSegmentIndex(curve)
	}

	for i := 0; i < payload.LrmCount(); i++ {
		view := payload.Lrm(i)
		entry, err := l.buildLrm(view)
		if err != nil {
			return nil, err
		}
		if _, dup := l.byID[entry.id]; dup {
			return nil, &wire.MalformedError{Offset: -1, Reason: fmt.Sprintf("duplicate LRM id %q", entry.id)}
		}
		l.byID[entry.id] = len(l.lrms)
		l.lrms = append(l.lrms, entry)
	}
	return l, nil
}

func (l *LRS) buildLrm(view wire.LrmView) (lrm, error) {
	id := view.ID()
	curve := l.curves[view.CurveIndex()]

	anchors := make([]scale.Anchor, view.AnchorCount())
	for j := range anchors {
		av := view.Anchor(j)
		a := scale.Anchor{
			Name:          av.Name(),
			CurvePosition: av.CurvePosition(),
			ScalePosition: av.ScalePosition(),
		}
		if props := av.Properties(); len(props) > 0 {
			a.Properties = make([]scale.Property, len(props))
			for k, p := range props {
				a.Properties[k] = scale.Property{Key: p.Key, Value: p.Value}
			}
		}
		if a.CurvePosition < 0 || a.CurvePosition > curve.Length() {
			return lrm{}, &wire.MalformedError{Offset: -1, Reason: fmt.Sprintf(
				"LRM %q anchor %q at curve position %g outside [0, %g]",
				id, a.Name, a.CurvePosition, curve.Length())}
		}
		anchors[j] = a
	}

	sc, err := scale.New(id, anchors)
	if err != nil {
		return lrm{}, &wire.MalformedError{Offset: -1, Reason: err.Error()}
	}
	return lrm{id: id, curveIdx: view.CurveIndex(), scale: sc}, nil
}

// LrmCount returns the number of LRMs in the system.
func (l *LRS) LrmCount() int {
	return len(l.lrms)
}

// LrmIDs returns the LRM identifiers in payload order.
func (l *LRS) LrmIDs() []string {
	ids := make([]string, len(l.lrms))
	for i, e := range l.lrms {
		ids[i] = e.id
	}
	return ids
}

// LrmInfo is the read-only summary view of one LRM.
type LrmInfo struct {
	ID string
	// CurveIndex identifies the curve within the payload's shared arena;
	// LRMs over the same geometry report the same index.
	CurveIndex int
	Length     float64
	Anchors    []scale.Anchor
}

// Lrm returns the view of the named LRM.
func (l *LRS) Lrm(id string) (LrmInfo, error) {
	e, err := l.lrm(id)
	if err != nil {
		return LrmInfo{}, err
	}
	return LrmInfo{
		ID:         e.id,
		CurveIndex: e.curveIdx,
		Length:     l.curves[e.curveIdx].Length(),
		Anchors:    e.scale.Anchors(),
	}, nil
}

// Anchors returns the ordered anchors of an LRM.
func (l *LRS) Anchors(lrmID string) ([]scale.Anchor, error) {
	e, err := l.lrm(lrmID)
	if err != nil {
		return nil, err
	}
	return e.scale.Anchors(), nil
}

// AnchorProperties returns the ordered key/value properties of one anchor.
func (l *LRS) AnchorProperties(lrmID string, anchorIndex int) ([]scale.Property, error) {
	e, err := l.lrm(lrmID)
	if err != nil {
		return nil, err
	}
	anchors := e.scale.Anchors()
	if anchorIndex < 0 || anchorIndex >= len(anchors) {
		return nil, fmt.Errorf("LRM %q has no anchor %d (have %d)", lrmID, anchorIndex, len(anchors))
	}
	return anchors[anchorIndex].Properties, nil
}

// Geometry returns the raw vertices of the LRM's curve, for rendering.
func (l *LRS) Geometry(lrmID string) ([]geom.Point, error) {
	e, err := l.lrm(lrmID)
	if err != nil {
		return nil, err
	}
	return l.curves[e.curveIdx].Points(), nil
}

// Length returns the arc length of the LRM's curve.
func (l *LRS) Length(lrmID string) (float64, error) {
	e, err := l.lrm(lrmID)
	if err != nil {
		return 0, err
	}
	return l.curves[e.curveIdx].Length(), nil
}

// Resolve converts a measure to its point on the LRM's curve. Measures
// beyond the curve return a geom.OutOfRangeError; nothing is clamped.
func (l *LRS) Resolve(lrmID string, m scale.Measure) (geom.Point, error) {
	e, err := l.lrm(lrmID)
	if err != nil {
		return geom.Point{}, err
	}
	position, err := e.scale.PositionOf(m)
	if err != nil {
		return geom.Point{}, err
	}
	return l.curves[e.curveIdx].PointAt(position)
}

// ResolveRange materializes the polyline between two measures. When the
// start measure resolves after the end measure the polyline is returned in
// reversed geometric order; callers must not assume the start is
// geometrically first.
func (l *LRS) ResolveRange(lrmID string, from, to scale.Measure) ([]geom.Point, error) {
	e, err := l.lrm(lrmID)
	if err != nil {
		return nil, err
	}
	fromPos, err := e.scale.PositionOf(from)
	if err != nil {
		return nil, err
	}
	toPos, err := e.scale.PositionOf(to)
	if err != nil {
		return nil, err
	}
	return l.curves[e.curveIdx].SubCurve(fromPos, toPos)
}

// Lookup projects a point onto the named LRM's curve and expresses the
// result as a measure. The slice has exactly one entry per curve searched
// (one, today); it is a slice so that multi-curve ranking can be added
// without changing the signature. Deterministic: equal inputs yield equal
// output.
func (l *LRS) Lookup(p geom.Point, lrmID string) ([]Projection, error) {
	e, err := l.lrm(lrmID)
	if err != nil {
		return nil, err
	}
	result := l.indexes[e.curveIdx].Project(p)
	return []Projection{{
		Point:    result.Point,
		Measure:  e.scale.MeasureAt(result.Position),
		Distance: result.Distance,
		Offset:   result.Offset,
	}}, nil
}

func (l *LRS) lrm(id string) (lrm, error) {
	i, ok := l.byID[id]
	if !ok {
		return lrm{}, &UnknownLrmError{ID: id}
	}
	return l.lrms[i], nil
}
