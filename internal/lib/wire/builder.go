package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/s2"
)

// AnchorSpec describes one anchor for the builder. Anchors must be supplied
// strictly sorted by curve position; the builder writes them as given and
// consumers reject disorder at load time.
type AnchorSpec struct {
	Name          string
	CurvePosition float64
	ScalePosition float64
	Properties    []Property
}

type lrmSpec struct {
	id         string
	curveIndex int
	anchors    []AnchorSpec
}

// Builder assembles an LRSB payload. It is the producer side of the wire
// contract, used by the convert tooling and by tests; importers that turn a
// source graph into curves feed their output through it.
type Builder struct {
	curves [][][2]float64
	lrms   []lrmSpec
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddCurve appends a curve and returns its index for use in AddLrm.
func (b *Builder) AddCurve(coords [][2]float64) int {
	c := make([][2]float64, len(coords))
	copy(c, coords)
	b.curves = append(b.curves, c)
	return len(b.curves) - 1
}

// AddLrm appends an LRM referencing a previously added curve.
func (b *Builder) AddLrm(id string, curveIndex int, anchors []AnchorSpec) error {
	if curveIndex < 0 || curveIndex >= len(b.curves) {
		return fmt.Errorf("wire: curve index %d out of range (have %d curves)", curveIndex, len(b.curves))
	}
	a := make([]AnchorSpec, len(anchors))
	copy(a, anchors)
	b.lrms = append(b.lrms, lrmSpec{id: id, curveIndex: curveIndex, anchors: a})
	return nil
}

// Bytes serializes the payload. The output round-trips through Open.
func (b *Builder) Bytes() ([]byte, error) {
	if err := b.checkLimits(); err != nil {
		return nil, err
	}

	// Record offsets are laid out sequentially: header, curve table, curve
	// records, LRM table, LRM records (anchors inline after each LRM
	// header). All sizes are known up front, so offsets are computed before
	// anything is written.
	curveTable := headerSize
	off := curveTable + 4*len(b.curves)
	curveOffs := make([]int, len(b.curves))
	for i, c := range b.curves {
		curveOffs[i] = off
		off += 4 + 16*len(c)
	}

	lrmTable := off
	off += 4 * len(b.lrms)
	lrmOffs := make([]int, len(b.lrms))
	for i, l := range b.lrms {
		lrmOffs[i] = off
		off += 2 + len(l.id) + 8 + 4*len(l.anchors)
		for _, a := range l.anchors {
			off += anchorSize(a)
		}
	}
	if off > math.MaxUint32 {
		return nil, fmt.Errorf("wire: payload size %d exceeds the u32 offset range", off)
	}

	buf := make([]byte, 0, off)
	buf = append(buf, magicRaw...)
	buf = append(buf, Version, 0)
	buf = appendU16(buf, 0)
	buf = appendU32(buf, uint32(len(b.curves)))
	buf = appendU32(buf, uint32(len(b.lrms)))
	buf = appendU32(buf, uint32(curveTable))
	buf = appendU32(buf, uint32(lrmTable))

	for _, o := range curveOffs {
		buf = appendU32(buf, uint32(o))
	}
	for _, c := range b.curves {
		buf = appendU32(buf, uint32(len(c)))
		for _, pt := range c {
			buf = appendF64(buf, pt[0])
			buf = appendF64(buf, pt[1])
		}
	}

	for _, o := range lrmOffs {
		buf = appendU32(buf, uint32(o))
	}
	for i, l := range b.lrms {
		buf = appendU16(buf, uint16(len(l.id)))
		buf = append(buf, l.id...)
		buf = appendU32(buf, uint32(l.curveIndex))
		buf = appendU32(buf, uint32(len(l.anchors)))

		aoff := lrmOffs[i] + 2 + len(l.id) + 8 + 4*len(l.anchors)
		for _, a := range l.anchors {
			buf = appendU32(buf, uint32(aoff))
			aoff += anchorSize(a)
		}
		for _, a := range l.anchors {
			buf = appendU16(buf, uint16(len(a.Name)))
			buf = append(buf, a.Name...)
			buf = appendF64(buf, a.CurvePosition)
			buf = appendF64(buf, a.ScalePosition)
			buf = appendU16(buf, uint16(len(a.Properties)))
			for _, prop := range a.Properties {
				buf = appendU16(buf, uint16(len(prop.Key)))
				buf = append(buf, prop.Key...)
				buf = appendU16(buf, uint16(len(prop.Value)))
				buf = append(buf, prop.Value...)
			}
		}
	}
	return buf, nil
}

// CompressedBytes serializes the payload into the LRSZ container.
func (b *Builder) CompressedBytes() ([]byte, error) {
	raw, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	enc := s2.Encode(nil, raw)
	out := make([]byte, 0, 4+len(enc))
	out = append(out, magicCompressed...)
	return append(out, enc...), nil
}

// checkLimits rejects strings and sequences too long for their length
// prefixes before any bytes are written.
func (b *Builder) checkLimits() error {
	for _, l := range b.lrms {
		if len(l.id) > math.MaxUint16 {
			return fmt.Errorf("wire: LRM id longer than %d bytes", math.MaxUint16)
		}
		for _, a := range l.anchors {
			if len(a.Name) > math.MaxUint16 {
				return fmt.Errorf("wire: anchor name longer than %d bytes", math.MaxUint16)
			}
			if len(a.Properties) > math.MaxUint16 {
				return fmt.Errorf("wire: anchor %q has more than %d properties", a.Name, math.MaxUint16)
			}
			for _, prop := range a.Properties {
				if len(prop.Key) > math.MaxUint16 || len(prop.Value) > math.MaxUint16 {
					return fmt.Errorf("wire: property on anchor %q longer than %d bytes", a.Name, math.MaxUint16)
				}
			}
		}
	}
	return nil
}

func anchorSize(a AnchorSpec) int {
	n := 2 + len(a.Name) + 16 + 2
	for _, p := range a.Properties {
		n += 4 + len(p.Key) + len(p.Value)
	}
	return n
}

func appendU16(buf []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, v)
}

func appendU32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func appendF64(buf []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
}
