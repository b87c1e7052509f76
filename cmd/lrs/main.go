// Command lrs inspects and queries linear referencing payloads, and
// converts curve/anchor descriptions into the binary format the engine
// loads.
//
// Coordinates are planar as far as the engine is concerned; the kml and
// polyline formats of convert/export interpret X as longitude and Y as
// latitude.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/dpup/linref/internal/lib/geom"
	"github.com/dpup/linref/internal/lib/lrs"
	"github.com/dpup/linref/internal/lib/scale"
)

var cli struct {
	Info    InfoCmd    `cmd:"" help:"Summarize the LRMs and anchors in a payload"`
	Resolve ResolveCmd `cmd:"" help:"Convert a measure to a point"`
	Lookup  LookupCmd  `cmd:"" help:"Project a point onto an LRM and report its measure"`
	Range   RangeCmd   `cmd:"" help:"Materialize the polyline between two measures"`
	Convert ConvertCmd `cmd:"" help:"Convert a curve/anchor description (yaml, geojson, kml) to a binary payload"`
	Export  ExportCmd  `cmd:"" help:"Export curve geometry as kml, geojson or an encoded polyline"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("lrs"),
		kong.Description("Linear referencing payload tooling"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// loadFile reads and loads a payload from disk.
func loadFile(path string) (*lrs.LRS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	system, err := lrs.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return system, nil
}

// parseMeasure parses "anchor", "anchor+offset" or "anchor-offset", using
// the last sign that starts a valid number so that anchor names containing
// signs still parse.
func parseMeasure(s string) (scale.Measure, error) {
	for i := len(s) - 1; i > 0; i-- {
		if s[i] != '+' && s[i] != '-' {
			continue
		}
		if offset, err := strconv.ParseFloat(s[i:], 64); err == nil {
			return scale.Measure{Anchor: s[:i], Offset: offset}, nil
		}
	}
	if s == "" {
		return scale.Measure{}, fmt.Errorf("empty measure")
	}
	return scale.Measure{Anchor: s}, nil
}

// InfoCmd summarizes a payload.
type InfoCmd struct {
	Path string `arg:"" help:"Payload file" type:"existingfile"`
}

func (c *InfoCmd) Run() error {
	system, err := loadFile(c.Path)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d LRM(s)\n", c.Path, system.LrmCount())
	for _, id := range system.LrmIDs() {
		info, err := system.Lrm(id)
		if err != nil {
			return err
		}
		geometry, _ := system.Geometry(id)

		fmt.Printf("\n%s: length %g, %d vertices, %d anchors\n",
			info.ID, info.Length, len(geometry), len(info.Anchors))
		for _, a := range info.Anchors {
			fmt.Printf("  %-12s curve %-12g scale %-12g", a.Name, a.CurvePosition, a.ScalePosition)
			if len(a.Properties) > 0 {
				var pairs []string
				for _, p := range a.Properties {
					pairs = append(pairs, p.Key+"="+p.Value)
				}
				fmt.Printf(" [%s]", strings.Join(pairs, " "))
			}
			fmt.Println()
		}
	}
	return nil
}

// ResolveCmd converts a measure to a point.
type ResolveCmd struct {
	Path    string `arg:"" help:"Payload file" type:"existingfile"`
	Lrm     string `required:"" help:"LRM id"`
	Measure string `arg:"" help:"Measure, e.g. '10+120'"`
}

func (c *ResolveCmd) Run() error {
	system, err := loadFile(c.Path)
	if err != nil {
		return err
	}
	m, err := parseMeasure(c.Measure)
	if err != nil {
		return err
	}
	p, err := system.Resolve(c.Lrm, m)
	if err != nil {
		return err
	}
	fmt.Printf("%g %g\n", p.X, p.Y)
	return nil
}

// LookupCmd projects a point onto an LRM.
type LookupCmd struct {
	Path string  `arg:"" help:"Payload file" type:"existingfile"`
	Lrm  string  `required:"" help:"LRM id"`
	X    float64 `required:"" help:"Query point X"`
	Y    float64 `required:"" help:"Query point Y"`
}

func (c *LookupCmd) Run() error {
	system, err := loadFile(c.Path)
	if err != nil {
		return err
	}
	projections, err := system.Lookup(geom.Point{X: c.X, Y: c.Y}, c.Lrm)
	if err != nil {
		return err
	}
	for _, p := range projections {
		side := "left"
		if p.Offset < 0 {
			side = "right"
		}
		fmt.Printf("%s  point (%g %g)  distance %g (%s)\n",
			p.Measure, p.Point.X, p.Point.Y, p.Distance, side)
	}
	return nil
}

// RangeCmd materializes a polyline between two measures.
type RangeCmd struct {
	Path string `arg:"" help:"Payload file" type:"existingfile"`
	Lrm  string `required:"" help:"LRM id"`
	From string `required:"" help:"Start measure, e.g. '10+120'"`
	To   string `required:"" help:"End measure"`
}

func (c *RangeCmd) Run() error {
	system, err := loadFile(c.Path)
	if err != nil {
		return err
	}
	from, err := parseMeasure(c.From)
	if err != nil {
		return err
	}
	to, err := parseMeasure(c.To)
	if err != nil {
		return err
	}
	pts, err := system.ResolveRange(c.Lrm, from, to)
	if err != nil {
		return err
	}
	for _, p := range pts {
		fmt.Printf("%g %g\n", p.X, p.Y)
	}
	return nil
}
