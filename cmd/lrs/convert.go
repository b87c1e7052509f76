package main

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/dpup/linref/internal/lib/geom"
	"github.com/dpup/linref/internal/lib/lrs"
	"github.com/dpup/linref/internal/lib/wire"
)

// ConvertCmd turns a curve/anchor description into a binary payload. The
// input format is chosen by extension: .yaml/.yml for the native
// descriptor, .geojson/.json for GeoJSON LineString features, .kml for KML
// LineString placemarks. Geometry-only sources get synthetic "start" and
// "end" anchors at the curve extremities.
type ConvertCmd struct {
	Input    string `arg:"" help:"Input description" type:"existingfile"`
	Out      string `short:"o" required:"" help:"Output payload file"`
	Compress bool   `help:"Emit the s2-compressed container"`
}

func (c *ConvertCmd) Run() error {
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return err
	}

	var builder *wire.Builder
	switch ext := strings.ToLower(filepath.Ext(c.Input)); ext {
	case ".yaml", ".yml":
		builder, err = buildFromYAML(data)
	case ".geojson", ".json":
		builder, err = buildFromGeoJSON(data)
	case ".kml":
		builder, err = buildFromKML(data)
	default:
		return fmt.Errorf("unsupported input extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", c.Input, err)
	}

	payload, err := builder.Bytes()
	if err != nil {
		return err
	}
	// Loading our own output catches descriptor mistakes (unsorted
	// anchors, anchors beyond the curve) before they reach a consumer.
	if _, err := lrs.Load(payload); err != nil {
		return fmt.Errorf("%s produced an invalid payload: %w", c.Input, err)
	}

	if c.Compress {
		payload, err = builder.CompressedBytes()
		if err != nil {
			return err
		}
	}
	if err := os.WriteFile(c.Out, payload, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", c.Out, len(payload))
	return nil
}

// descriptor is the native YAML input.
type descriptor struct {
	Curves []curveSpec `yaml:"curves"`
	Lrms   []lrmSpec   `yaml:"lrms"`
}

type curveSpec struct {
	Points [][]float64 `yaml:"points"`
}

type lrmSpec struct {
	ID      string       `yaml:"id"`
	Curve   int          `yaml:"curve"`
	Anchors []anchorSpec `yaml:"anchors"`
}

type anchorSpec struct {
	Name       string         `yaml:"name"`
	Position   float64        `yaml:"position"`
	Scale      float64        `yaml:"scale"`
	Properties []propertySpec `yaml:"properties"`
}

type propertySpec struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

func buildFromYAML(data []byte) (*wire.Builder, error) {
	var d descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}

	b := wire.NewBuilder()
	for i, c := range d.Curves {
		coords := make([][2]float64, len(c.Points))
		for j, pt := range c.Points {
			if len(pt) < 2 {
				return nil, fmt.Errorf("curve %d point %d needs two coordinates", i, j)
			}
			coords[j] = [2]float64{pt[0], pt[1]}
		}
		b.AddCurve(coords)
	}

	for _, l := range d.Lrms {
		anchors := make([]wire.AnchorSpec, len(l.Anchors))
		for j, a := range l.Anchors {
			spec := wire.AnchorSpec{
				Name:          a.Name,
				CurvePosition: a.Position,
				ScalePosition: a.Scale,
			}
			for _, p := range a.Properties {
				spec.Properties = append(spec.Properties, wire.Property{Key: p.Key, Value: p.Value})
			}
			anchors[j] = spec
		}
		if err := b.AddLrm(l.ID, l.Curve, anchors); err != nil {
			return nil, fmt.Errorf("lrm %q: %w", l.ID, err)
		}
	}
	return b, nil
}

// buildFromGeoJSON extracts every LineString feature as one curve + LRM.
// The LRM id comes from properties.id, properties.name, or the feature
// index.
func buildFromGeoJSON(data []byte) (*wire.Builder, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)

	features := root.Get("features").Array()
	if root.Get("type").String() == "Feature" {
		features = []gjson.Result{root}
	}

	b := wire.NewBuilder()
	added := 0
	for i, feature := range features {
		if feature.Get("geometry.type").String() != "LineString" {
			continue
		}
		var coords [][2]float64
		for _, pos := range feature.Get("geometry.coordinates").Array() {
			xy := pos.Array()
			if len(xy) < 2 {
				return nil, fmt.Errorf("feature %d has a position with fewer than two coordinates", i)
			}
			coords = append(coords, [2]float64{xy[0].Float(), xy[1].Float()})
		}

		id := feature.Get("properties.id").String()
		if id == "" {
			id = feature.Get("properties.name").String()
		}
		if id == "" {
			id = "feature-" + strconv.Itoa(i)
		}
		if err := addGeometryLrm(b, id, coords); err != nil {
			return nil, err
		}
		added++
	}
	if added == 0 {
		return nil, fmt.Errorf("no LineString features found")
	}
	return b, nil
}

// KML subset sufficient for LineString placemarks: placemarks directly in
// the document or nested in folders.
type kmlFile struct {
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlFolder struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name       string `xml:"name"`
	LineString *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"LineString"`
}

func buildFromKML(data []byte) (*wire.Builder, error) {
	var file kmlFile
	if err := xml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	placemarks := file.Document.Placemarks
	for _, folder := range file.Document.Folders {
		placemarks = append(placemarks, folder.Placemarks...)
	}

	b := wire.NewBuilder()
	added := 0
	for i, pm := range placemarks {
		if pm.LineString == nil {
			continue
		}
		coords, err := parseKMLCoordinates(pm.LineString.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("placemark %q: %w", pm.Name, err)
		}
		id := pm.Name
		if id == "" {
			id = "placemark-" + strconv.Itoa(i)
		}
		if err := addGeometryLrm(b, id, coords); err != nil {
			return nil, err
		}
		added++
	}
	if added == 0 {
		return nil, fmt.Errorf("no LineString placemarks found")
	}
	return b, nil
}

// parseKMLCoordinates parses the KML "lon,lat[,alt]" whitespace-separated
// tuple list. Altitude is dropped.
func parseKMLCoordinates(s string) ([][2]float64, error) {
	var coords [][2]float64
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("bad coordinate tuple %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad longitude in %q", tuple)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad latitude in %q", tuple)
		}
		coords = append(coords, [2]float64{lon, lat})
	}
	return coords, nil
}

// addGeometryLrm adds a curve from a geometry-only source with synthetic
// anchors at its extremities: "start" at scale 0 and "end" at the curve
// length.
func addGeometryLrm(b *wire.Builder, id string, coords [][2]float64) error {
	pts := make([]geom.Point, len(coords))
	for i, xy := range coords {
		pts[i] = geom.Point{X: xy[0], Y: xy[1]}
	}
	curve, err := geom.NewCurve(pts)
	if err != nil {
		return fmt.Errorf("lrm %q: %w", id, err)
	}

	idx := b.AddCurve(coords)
	return b.AddLrm(id, idx, []wire.AnchorSpec{
		{Name: "start", CurvePosition: 0, ScalePosition: 0},
		{Name: "end", CurvePosition: curve.Length(), ScalePosition: curve.Length()},
	})
}
