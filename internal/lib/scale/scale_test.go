package scale

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kmScale is an ascending kilometre-point scale: anchors every ~1000 units
// of curve length, with a short chainage break between 11 and 13 (the scale
// jumps, as real scales do after realignments).
func kmScale(t *testing.T) *Scale {
	t.Helper()
	s, err := New("track", []Anchor{
		{Name: "10", CurvePosition: 0, ScalePosition: 10000},
		{Name: "11", CurvePosition: 1000, ScalePosition: 11000},
		{Name: "13", CurvePosition: 1800, ScalePosition: 13000},
	})
	require.NoError(t, err)
	return s
}

// descendingScale runs against the curve direction: scale values decrease
// as the curve position increases.
func descendingScale(t *testing.T) *Scale {
	t.Helper()
	s, err := New("countdown", []Anchor{
		{Name: "50", CurvePosition: 0, ScalePosition: 50000},
		{Name: "49", CurvePosition: 1000, ScalePosition: 49000},
		{Name: "48", CurvePosition: 2000, ScalePosition: 48000},
	})
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New("empty", nil)
	assert.Error(t, err, "a scale needs at least one anchor")

	_, err = New("unsorted", []Anchor{
		{Name: "b", CurvePosition: 100},
		{Name: "a", CurvePosition: 0},
	})
	assert.Error(t, err, "anchors out of curve order must be rejected, not reordered")

	_, err = New("dup-pos", []Anchor{
		{Name: "a", CurvePosition: 100},
		{Name: "b", CurvePosition: 100},
	})
	assert.Error(t, err, "duplicate curve positions must be rejected")

	_, err = New("dup-name", []Anchor{
		{Name: "a", CurvePosition: 0},
		{Name: "a", CurvePosition: 100},
	})
	assert.Error(t, err, "anchor names are unique within a scale")

	// NaN compares false against every ordering guard, so finiteness has to
	// be checked explicitly.
	_, err = New("nan-pos", []Anchor{{Name: "a", CurvePosition: math.NaN()}})
	assert.Error(t, err, "non-finite curve positions must be rejected")

	_, err = New("inf-scale", []Anchor{{Name: "a", ScalePosition: math.Inf(1)}})
	assert.Error(t, err, "non-finite scale positions must be rejected")
}

func TestScale_Anchor(t *testing.T) {
	s := kmScale(t)

	a, ok := s.Anchor("11")
	require.True(t, ok)
	assert.Equal(t, 1000.0, a.CurvePosition)

	_, ok = s.Anchor("12")
	assert.False(t, ok)
}

func TestScale_PositionOf(t *testing.T) {
	s := kmScale(t)

	pos, err := s.PositionOf(Measure{Anchor: "10", Offset: 120})
	require.NoError(t, err)
	assert.Equal(t, 120.0, pos)

	// Offsets are relative to the named anchor, whatever its scale value.
	pos, err = s.PositionOf(Measure{Anchor: "13", Offset: 50})
	require.NoError(t, err)
	assert.Equal(t, 1850.0, pos)

	// Negative offsets walk backwards.
	pos, err = s.PositionOf(Measure{Anchor: "11", Offset: -100})
	require.NoError(t, err)
	assert.Equal(t, 900.0, pos)

	// The result is not clamped to the curve.
	pos, err = s.PositionOf(Measure{Anchor: "10", Offset: -500})
	require.NoError(t, err)
	assert.Equal(t, -500.0, pos)
}

func TestScale_PositionOf_UnknownAnchor(t *testing.T) {
	s := kmScale(t)

	_, err := s.PositionOf(Measure{Anchor: "12", Offset: 0})
	var unknown *UnknownAnchorError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "track", unknown.Scale)
	assert.Equal(t, "12", unknown.Anchor)
}

func TestScale_PositionOf_DescendingScale(t *testing.T) {
	s := descendingScale(t)

	// The scale decreases along the curve, so increasing offset from an
	// anchor still moves in the direction its own scale increases, which is
	// backwards along the curve.
	pos, err := s.PositionOf(Measure{Anchor: "49", Offset: 100})
	require.NoError(t, err)
	assert.Equal(t, 900.0, pos)

	pos, err = s.PositionOf(Measure{Anchor: "49", Offset: -100})
	require.NoError(t, err)
	assert.Equal(t, 1100.0, pos)
}

func TestScale_MeasureAt(t *testing.T) {
	s := kmScale(t)

	// Exactly on an anchor.
	assert.Equal(t, Measure{Anchor: "11", Offset: 0}, s.MeasureAt(1000))

	// Between anchors: relative to the lower bracketing anchor, offset
	// non-negative.
	assert.Equal(t, Measure{Anchor: "10", Offset: 120}, s.MeasureAt(120))
	assert.Equal(t, Measure{Anchor: "11", Offset: 500}, s.MeasureAt(1500))

	// Before the first anchor: extrapolation, negative offset.
	assert.Equal(t, Measure{Anchor: "10", Offset: -50}, s.MeasureAt(-50))

	// After the last anchor: extrapolation, the offset may exceed any
	// inter-anchor span.
	assert.Equal(t, Measure{Anchor: "13", Offset: 5000}, s.MeasureAt(6800))
}

func TestScale_MeasureAt_SingleAnchor(t *testing.T) {
	s, err := New("lone", []Anchor{{Name: "0", CurvePosition: 500, ScalePosition: 0}})
	require.NoError(t, err)

	assert.Equal(t, Measure{Anchor: "0", Offset: 250}, s.MeasureAt(750))
	assert.Equal(t, Measure{Anchor: "0", Offset: -500}, s.MeasureAt(0))

	pos, err := s.PositionOf(Measure{Anchor: "0", Offset: 250})
	require.NoError(t, err)
	assert.Equal(t, 750.0, pos)
}

func TestScale_RoundTrip(t *testing.T) {
	for name, s := range map[string]*Scale{
		"ascending":  kmScale(t),
		"descending": descendingScale(t),
	} {
		t.Run(name, func(t *testing.T) {
			// Interpolated, exact-anchor and extrapolated positions all
			// survive the measure round trip.
			for _, pos := range []float64{-200, 0, 120, 999.5, 1000, 1500, 1800, 2500} {
				m := s.MeasureAt(pos)
				back, err := s.PositionOf(m)
				require.NoError(t, err)
				assert.InDelta(t, pos, back, 1e-9, "position %g via %v", pos, m)
			}
		})
	}
}

func TestScale_RoundTripMeasure(t *testing.T) {
	s := kmScale(t)

	// A measure within the anchor span round-trips to an equivalent one.
	m := Measure{Anchor: "11", Offset: 300}
	pos, err := s.PositionOf(m)
	require.NoError(t, err)
	assert.Equal(t, m, s.MeasureAt(pos))
}

func TestMeasure_String(t *testing.T) {
	assert.Equal(t, "10+120", Measure{Anchor: "10", Offset: 120}.String())
}
