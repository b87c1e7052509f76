package lrs

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/linref/internal/lib/geom"
	"github.com/dpup/linref/internal/lib/scale"
	"github.com/dpup/linref/internal/lib/wire"
)

// trackPayload is the reference scenario: a straight 20-unit track with an
// anchor at each end, the far anchor 2000 scale units along.
func trackPayload(t *testing.T) []byte {
	t.Helper()
	b := wire.NewBuilder()
	idx := b.AddCurve([][2]float64{{0, 0}, {0, 10}, {0, 20}})
	err := b.AddLrm("track", idx, []wire.AnchorSpec{
		{Name: "A", CurvePosition: 0, ScalePosition: 0, Properties: []wire.Property{
			{Key: "kind", Value: "buffer-stop"},
		}},
		{Name: "B", CurvePosition: 20, ScalePosition: 2000},
	})
	require.NoError(t, err)
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func loadTrack(t *testing.T) *LRS {
	t.Helper()
	l, err := Load(trackPayload(t))
	require.NoError(t, err)
	return l
}

func TestLoad_Accessors(t *testing.T) {
	l := loadTrack(t)

	assert.Equal(t, 1, l.LrmCount())
	assert.Equal(t, []string{"track"}, l.LrmIDs())

	length, err := l.Length("track")
	require.NoError(t, err)
	assert.Equal(t, 20.0, length)

	geometry, err := l.Geometry("track")
	require.NoError(t, err)
	assert.Equal(t, []geom.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 0, Y: 20}}, geometry)

	anchors, err := l.Anchors("track")
	require.NoError(t, err)
	require.Len(t, anchors, 2)
	assert.Equal(t, "A", anchors[0].Name)
	assert.Equal(t, "B", anchors[1].Name)

	info, err := l.Lrm("track")
	require.NoError(t, err)
	assert.Equal(t, "track", info.ID)
	assert.Equal(t, 0, info.CurveIndex)
	assert.Equal(t, 20.0, info.Length)
	assert.Equal(t, anchors, info.Anchors)

	_, err = l.Lrm("branch")
	var unknown *UnknownLrmError
	assert.ErrorAs(t, err, &unknown)

	props, err := l.AnchorProperties("track", 0)
	require.NoError(t, err)
	assert.Equal(t, []scale.Property{{Key: "kind", Value: "buffer-stop"}}, props)

	props, err = l.AnchorProperties("track", 1)
	require.NoError(t, err)
	assert.Empty(t, props)

	_, err = l.AnchorProperties("track", 5)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	l := loadTrack(t)

	p, err := l.Resolve("track", scale.Measure{Anchor: "A", Offset: 5})
	require.NoError(t, err)
	assert.Equal(t, geom.Point{X: 0, Y: 5}, p)

	p, err = l.Resolve("track", scale.Measure{Anchor: "B", Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, geom.Point{X: 0, Y: 15}, p)
}

func TestResolve_Errors(t *testing.T) {
	l := loadTrack(t)

	_, err := l.Resolve("branch", scale.Measure{Anchor: "A"})
	var unknownLrm *UnknownLrmError
	require.ErrorAs(t, err, &unknownLrm)
	assert.Equal(t, "branch", unknownLrm.ID)

	_, err = l.Resolve("track", scale.Measure{Anchor: "Z"})
	var unknownAnchor *scale.UnknownAnchorError
	require.ErrorAs(t, err, &unknownAnchor)
	assert.Equal(t, "Z", unknownAnchor.Anchor)

	// Measures beyond the curve are not clamped; they surface as
	// out-of-range.
	_, err = l.Resolve("track", scale.Measure{Anchor: "A", Offset: -5})
	var oor *geom.OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, -5.0, oor.Position)
}

func TestLookup(t *testing.T) {
	l := loadTrack(t)

	projections, err := l.Lookup(geom.Point{X: 1, Y: 5}, "track")
	require.NoError(t, err)
	require.Len(t, projections, 1)

	p := projections[0]
	assert.Equal(t, geom.Point{X: 0, Y: 5}, p.Point)
	assert.Equal(t, scale.Measure{Anchor: "A", Offset: 5}, p.Measure)
	assert.Equal(t, 1.0, p.Distance)
	assert.Equal(t, -1.0, p.Offset, "east of a northbound track is the right-hand side")

	_, err = l.Lookup(geom.Point{}, "missing")
	var unknownLrm *UnknownLrmError
	assert.ErrorAs(t, err, &unknownLrm)
}

func TestLookup_Deterministic(t *testing.T) {
	l := loadTrack(t)

	first, err := l.Lookup(geom.Point{X: 3, Y: 12}, "track")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := l.Lookup(geom.Point{X: 3, Y: 12}, "track")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveRange(t *testing.T) {
	l := loadTrack(t)

	pts, err := l.ResolveRange("track",
		scale.Measure{Anchor: "A", Offset: 0},
		scale.Measure{Anchor: "A", Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, []geom.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 0, Y: 20}}, pts)
}

func TestResolveRange_Reversal(t *testing.T) {
	l := loadTrack(t)

	from := scale.Measure{Anchor: "A", Offset: 3}
	to := scale.Measure{Anchor: "B", Offset: -3}

	forward, err := l.ResolveRange("track", from, to)
	require.NoError(t, err)
	backward, err := l.ResolveRange("track", to, from)
	require.NoError(t, err)

	require.Len(t, backward, len(forward))
	for i := range forward {
		assert.Equal(t, forward[i], backward[len(backward)-1-i])
	}
}

func TestLoad_SharedCurve(t *testing.T) {
	b := wire.NewBuilder()
	idx := b.AddCurve([][2]float64{{0, 0}, {100, 0}})
	require.NoError(t, b.AddLrm("up", idx, []wire.AnchorSpec{
		{Name: "0", CurvePosition: 0, ScalePosition: 0},
	}))
	require.NoError(t, b.AddLrm("down", idx, []wire.AnchorSpec{
		{Name: "100", CurvePosition: 0, ScalePosition: 100000},
		{Name: "99", CurvePosition: 100, ScalePosition: 99000},
	}))
	data, err := b.Bytes()
	require.NoError(t, err)

	l, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, 2, l.LrmCount())

	// Two scales over the same geometry disagree about direction but not
	// about the geometry itself.
	up, err := l.Resolve("up", scale.Measure{Anchor: "0", Offset: 30})
	require.NoError(t, err)
	down, err := l.Resolve("down", scale.Measure{Anchor: "99", Offset: 70})
	require.NoError(t, err)
	assert.Equal(t, geom.Point{X: 30, Y: 0}, up)
	assert.Equal(t, geom.Point{X: 30, Y: 0}, down)
}

func TestLoad_Malformed(t *testing.T) {
	newPayload := func(anchors []wire.AnchorSpec) []byte {
		b := wire.NewBuilder()
		idx := b.AddCurve([][2]float64{{0, 0}, {0, 20}})
		require.NoError(t, b.AddLrm("track", idx, anchors))
		data, err := b.Bytes()
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not a payload at all")},
		{"unsorted anchors", newPayload([]wire.AnchorSpec{
			{Name: "B", CurvePosition: 10},
			{Name: "A", CurvePosition: 0},
		})},
		{"duplicate anchor position", newPayload([]wire.AnchorSpec{
			{Name: "A", CurvePosition: 10},
			{Name: "B", CurvePosition: 10},
		})},
		{"anchor beyond curve", newPayload([]wire.AnchorSpec{
			{Name: "A", CurvePosition: 25},
		})},
		{"non-finite anchor position", newPayload([]wire.AnchorSpec{
			{Name: "A", CurvePosition: math.NaN()},
		})},
		{"no anchors", newPayload(nil)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := Load(tc.data)
			var malformed *wire.MalformedError
			require.ErrorAs(t, err, &malformed, "got: %v", err)
			assert.Nil(t, l, "no partial LRS on failure")
		})
	}
}

func TestLoad_DegenerateCurve(t *testing.T) {
	b := wire.NewBuilder()
	idx := b.AddCurve([][2]float64{{5, 5}}) // single point
	require.NoError(t, b.AddLrm("x", idx, []wire.AnchorSpec{{Name: "a"}}))
	data, err := b.Bytes()
	require.NoError(t, err)

	_, err = Load(data)
	var malformed *wire.MalformedError
	assert.ErrorAs(t, err, &malformed)
}

func TestLRS_ConcurrentLookups(t *testing.T) {
	l := loadTrack(t)

	// An LRS is immutable after Load; concurrent readers need no locking.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p := geom.Point{X: float64(g), Y: float64(i % 25)}
				if _, err := l.Lookup(p, "track"); err != nil {
					t.Errorf("lookup failed: %v", err)
				}
				if _, err := l.Resolve("track", scale.Measure{Anchor: "A", Offset: float64(i % 20)}); err != nil {
					t.Errorf("resolve failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()
}
