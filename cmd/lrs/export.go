package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/twpayne/go-kml/v2"
	"github.com/twpayne/go-polyline"

	"github.com/dpup/linref/internal/lib/geom"
	"github.com/dpup/linref/internal/lib/lrs"
	"github.com/dpup/linref/internal/lib/scale"
)

// ExportCmd writes curve geometry and anchors in a renderable format. The
// kml and polyline formats treat X as longitude and Y as latitude; a range
// limits the output to the polyline between two measures.
type ExportCmd struct {
	Path   string `arg:"" help:"Payload file" type:"existingfile"`
	Lrm    string `required:"" help:"LRM id"`
	Format string `default:"kml" enum:"kml,geojson,polyline" help:"Output format (kml, geojson, polyline)"`
	From   string `help:"Optional range start measure"`
	To     string `help:"Optional range end measure; requires --from"`
	Out    string `short:"o" help:"Output file (default stdout)"`
}

func (c *ExportCmd) Run() error {
	system, err := loadFile(c.Path)
	if err != nil {
		return err
	}

	var pts []geom.Point
	if c.From != "" || c.To != "" {
		if c.From == "" || c.To == "" {
			return fmt.Errorf("--from and --to must be given together")
		}
		from, err := parseMeasure(c.From)
		if err != nil {
			return err
		}
		to, err := parseMeasure(c.To)
		if err != nil {
			return err
		}
		pts, err = system.ResolveRange(c.Lrm, from, to)
		if err != nil {
			return err
		}
	} else {
		pts, err = system.Geometry(c.Lrm)
		if err != nil {
			return err
		}
	}

	out := io.Writer(os.Stdout)
	if c.Out != "" {
		f, err := os.Create(c.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	wholeCurve := c.From == "" && c.To == ""
	switch c.Format {
	case "kml":
		return writeKML(out, system, c.Lrm, pts, wholeCurve)
	case "geojson":
		return writeGeoJSON(out, c.Lrm, pts)
	case "polyline":
		return writePolyline(out, pts)
	}
	return fmt.Errorf("unsupported format %q", c.Format)
}

// writeKML emits the polyline and, when exporting the whole curve, a point
// placemark per anchor.
func writeKML(w io.Writer, system *lrs.LRS, lrmID string, pts []geom.Point, withAnchors bool) error {
	coords := make([]kml.Coordinate, len(pts))
	for i, p := range pts {
		coords[i] = kml.Coordinate{Lon: p.X, Lat: p.Y}
	}
	children := []kml.Element{
		kml.Placemark(
			kml.Name(lrmID),
			kml.LineString(kml.Coordinates(coords...)),
		),
	}

	if withAnchors {
		anchors, err := system.Anchors(lrmID)
		if err != nil {
			return err
		}
		for _, a := range anchors {
			p, err := system.Resolve(lrmID, scale.Measure{Anchor: a.Name})
			if err != nil {
				return err
			}
			children = append(children, kml.Placemark(
				kml.Name(a.Name),
				kml.Point(kml.Coordinates(kml.Coordinate{Lon: p.X, Lat: p.Y})),
			))
		}
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

func writeGeoJSON(w io.Writer, lrmID string, pts []geom.Point) error {
	coords := make([][2]float64, len(pts))
	for i, p := range pts {
		coords[i] = [2]float64{p.X, p.Y}
	}
	feature := map[string]any{
		"type":       "Feature",
		"properties": map[string]any{"id": lrmID},
		"geometry": map[string]any{
			"type":        "LineString",
			"coordinates": coords,
		},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"type":     "FeatureCollection",
		"features": []any{feature},
	})
}

// writePolyline emits the Google encoded polyline form; the encoding is
// lat,lng ordered.
func writePolyline(w io.Writer, pts []geom.Point) error {
	coords := make([][]float64, len(pts))
	for i, p := range pts {
		coords[i] = []float64{p.Y, p.X}
	}
	_, err := w.Write(append(polyline.EncodeCoords(coords), '\n'))
	return err
}
