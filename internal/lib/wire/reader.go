package wire

import (
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/s2"
)

// Payload is a read-only view over an LRSB buffer. Every record is
// structurally validated once by Open; afterwards all accessors read
// directly from the buffer without copying (strings are materialized at the
// API edge, numbers are decoded in place).
//
// A Payload borrows the buffer passed to Open and must not outlive it;
// Clone returns an independent copy for callers that need to release the
// original. Payloads are immutable and safe for concurrent use.
type Payload struct {
	buf       []byte
	curveOffs []int
	lrmOffs   []int
	owned     bool
}

// Open parses and validates a payload buffer. The buffer may be a raw LRSB
// payload, which is borrowed, or an s2-compressed LRSZ container, which is
// decompressed into an owned buffer. Any structural violation returns a
// MalformedError and no payload.
func Open(data []byte) (*Payload, error) {
	if len(data) < 4 {
		return nil, malformedf(0, "buffer too short for magic: %d bytes", len(data))
	}
	owned := false
	if string(data[:4]) == magicCompressed {
		raw, err := s2.Decode(nil, data[4:])
		if err != nil {
			return nil, malformedf(4, "s2 decompression failed: %v", err)
		}
		data = raw
		owned = true
	}

	p := &Payload{buf: data, owned: owned}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Clone returns a payload backed by its own copy of the buffer, for callers
// that must not retain the buffer Open was given. A payload that already
// owns its buffer (decompressed or previously cloned) is returned as is.
func (p *Payload) Clone() *Payload {
	if p.owned {
		return p
	}
	buf := make([]byte, len(p.buf))
	copy(buf, p.buf)
	return &Payload{buf: buf, curveOffs: p.curveOffs, lrmOffs: p.lrmOffs, owned: true}
}

// CurveCount returns the number of curves in the payload.
func (p *Payload) CurveCount() int {
	return len(p.curveOffs)
}

// LrmCount returns the number of LRMs in the payload.
func (p *Payload) LrmCount() int {
	return len(p.lrmOffs)
}

// Curve returns the view of curve i. It panics if i is out of range, like a
// slice access; the count comes from CurveCount.
func (p *Payload) Curve(i int) CurveView {
	off := p.curveOffs[i]
	return CurveView{buf: p.buf, off: off + 4, count: int(p.u32(off))}
}

// Lrm returns the view of LRM i. It panics if i is out of range.
func (p *Payload) Lrm(i int) LrmView {
	off := p.lrmOffs[i]
	idLen := int(p.u16(off))
	idOff := off + 2
	rest := idOff + idLen
	return LrmView{
		buf:        p.buf,
		idOff:      idOff,
		idLen:      idLen,
		curveIndex: int(p.u32(rest)),
		count:      int(p.u32(rest + 4)),
		tableOff:   rest + 8,
	}
}

// CurveView is a zero-copy view of one curve record.
type CurveView struct {
	buf   []byte
	off   int // first point
	count int
}

// PointCount returns the number of vertices.
func (v CurveView) PointCount() int {
	return v.count
}

// Point decodes vertex j in place. It panics if j is out of range.
func (v CurveView) Point(j int) (x, y float64) {
	if j < 0 || j >= v.count {
		panic("wire: curve point index out of range")
	}
	off := v.off + 16*j
	x = math.Float64frombits(binary.LittleEndian.Uint64(v.buf[off:]))
	y = math.Float64frombits(binary.LittleEndian.Uint64(v.buf[off+8:]))
	return x, y
}

// Coords materializes all vertices into an owned slice.
func (v CurveView) Coords() [][2]float64 {
	out := make([][2]float64, v.count)
	for j := range out {
		out[j][0], out[j][1] = v.Point(j)
	}
	return out
}

// LrmView is a zero-copy view of one LRM record.
type LrmView struct {
	buf        []byte
	idOff      int
	idLen      int
	curveIndex int
	count      int
	tableOff   int
}

// ID returns the LRM identifier.
func (v LrmView) ID() string {
	return string(v.buf[v.idOff : v.idOff+v.idLen])
}

// CurveIndex returns the index of the curve this LRM references.
func (v LrmView) CurveIndex() int {
	return v.curveIndex
}

// AnchorCount returns the number of anchors.
func (v LrmView) AnchorCount() int {
	return v.count
}

// Anchor returns the view of anchor j. It panics if j is out of range.
func (v LrmView) Anchor(j int) AnchorView {
	if j < 0 || j >= v.count {
		panic("wire: anchor index out of range")
	}
	off := int(binary.LittleEndian.Uint32(v.buf[v.tableOff+4*j:]))
	nameLen := int(binary.LittleEndian.Uint16(v.buf[off:]))
	nameOff := off + 2
	posOff := nameOff + nameLen
	return AnchorView{
		buf:       v.buf,
		nameOff:   nameOff,
		nameLen:   nameLen,
		posOff:    posOff,
		propCount: int(binary.LittleEndian.Uint16(v.buf[posOff+16:])),
		propOff:   posOff + 18,
	}
}

// AnchorView is a zero-copy view of one anchor record.
type AnchorView struct {
	buf       []byte
	nameOff   int
	nameLen   int
	posOff    int
	propCount int
	propOff   int
}

// Name returns the anchor name.
func (v AnchorView) Name() string {
	return string(v.buf[v.nameOff : v.nameOff+v.nameLen])
}

// CurvePosition returns the anchor's arc-length position on its curve.
func (v AnchorView) CurvePosition() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(v.buf[v.posOff:]))
}

// ScalePosition returns the anchor's own scale value.
func (v AnchorView) ScalePosition() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(v.buf[v.posOff+8:]))
}

// PropertyCount returns the number of key/value pairs.
func (v AnchorView) PropertyCount() int {
	return v.propCount
}

// Properties materializes the ordered key/value pairs.
func (v AnchorView) Properties() []Property {
	if v.propCount == 0 {
		return nil
	}
	out := make([]Property, 0, v.propCount)
	off := v.propOff
	for i := 0; i < v.propCount; i++ {
		klen := int(binary.LittleEndian.Uint16(v.buf[off:]))
		key := string(v.buf[off+2 : off+2+klen])
		off += 2 + klen
		vlen := int(binary.LittleEndian.Uint16(v.buf[off:]))
		val := string(v.buf[off+2 : off+2+vlen])
		off += 2 + vlen
		out = append(out, Property{Key: key, Value: val})
	}
	return out
}

// validate walks the whole structure once so that the view accessors can
// read without bounds checks of their own.
func (p *Payload) validate() error {
	buf := p.buf
	if len(buf) < headerSize {
		return malformedf(0, "buffer too short for header: %d bytes", len(buf))
	}
	if string(buf[:4]) != magicRaw {
		return malformedf(0, "bad magic %q", string(buf[:4]))
	}
	if v := buf[4]; v != Version {
		return malformedf(4, "unsupported format version %d (want %d)", v, Version)
	}
	if buf[5] != 0 {
		return malformedf(5, "unsupported flags 0x%02x", buf[5])
	}

	curveCount := int(p.u32(8))
	lrmCount := int(p.u32(12))
	curveTable := int(p.u32(16))
	lrmTable := int(p.u32(20))

	if err := p.checkRange(curveTable, 4*curveCount, "curve table"); err != nil {
		return err
	}
	if err := p.checkRange(lrmTable, 4*lrmCount, "LRM table"); err != nil {
		return err
	}

	p.curveOffs = make([]int, curveCount)
	for i := 0; i < curveCount; i++ {
		off := int(p.u32(curveTable + 4*i))
		if err := p.checkRange(off, 4, "curve record header"); err != nil {
			return err
		}
		n := int(p.u32(off))
		if err := p.checkRange(off+4, 16*n, "curve points"); err != nil {
			return err
		}
		p.curveOffs[i] = off
	}

	p.lrmOffs = make([]int, lrmCount)
	for i := 0; i < lrmCount; i++ {
		off := int(p.u32(lrmTable + 4*i))
		if err := p.validateLrm(off, curveCount); err != nil {
			return err
		}
		p.lrmOffs[i] = off
	}
	return nil
}

func (p *Payload) validateLrm(off, curveCount int) error {
	if err := p.checkRange(off, 2, "LRM id length"); err != nil {
		return err
	}
	idLen := int(p.u16(off))
	rest := off + 2 + idLen
	if err := p.checkRange(off+2, idLen+8, "LRM record"); err != nil {
		return err
	}
	curveIndex := int(p.u32(rest))
	if curveIndex >= curveCount {
		return malformedf(rest, "dangling curve index %d (have %d curves)", curveIndex, curveCount)
	}
	anchorCount := int(p.u32(rest + 4))
	tableOff := rest + 8
	if err := p.checkRange(tableOff, 4*anchorCount, "anchor table"); err != nil {
		return err
	}
	for j := 0; j < anchorCount; j++ {
		aoff := int(p.u32(tableOff + 4*j))
		if err := p.validateAnchor(aoff); err != nil {
			return err
		}
	}
	return nil
}

func (p *Payload) validateAnchor(off int) error {
	if err := p.checkRange(off, 2, "anchor name length"); err != nil {
		return err
	}
	nameLen := int(p.u16(off))
	posOff := off + 2 + nameLen
	// name + two f64 positions + property count
	if err := p.checkRange(off+2, nameLen+18, "anchor record"); err != nil {
		return err
	}
	propCount := int(p.u16(posOff + 16))
	cur := posOff + 18
	for k := 0; k < propCount; k++ {
		for _, what := range [2]string{"property key", "property value"} {
			if err := p.checkRange(cur, 2, what); err != nil {
				return err
			}
			n := int(p.u16(cur))
			if err := p.checkRange(cur+2, n, what); err != nil {
				return err
			}
			cur += 2 + n
		}
	}
	return nil
}

func (p *Payload) checkRange(off, size int, what string) error {
	if off < 0 || size < 0 || off+size > len(p.buf) {
		return malformedf(off, "%s out of bounds: %d bytes at offset %d in a %d byte buffer",
			what, size, off, len(p.buf))
	}
	return nil
}

func (p *Payload) u16(off int) uint16 {
	return binary.LittleEndian.Uint16(p.buf[off:])
}

func (p *Payload) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(p.buf[off:])
}
