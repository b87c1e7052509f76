// Package wire defines the LRSB binary format carrying a linear referencing
// system across process and language boundaries, with a zero-copy reader
// and the producer-side builder.
//
// All integers are little-endian. Offsets in tables are absolute byte
// offsets into the payload. Layout, version 1:
//
//	header (24 bytes)
//	  0   magic "LRSB"
//	  4   u8  version (currently 1)
//	  5   u8  flags (reserved, must be 0)
//	  6   u16 reserved
//	  8   u32 curve count
//	  12  u32 LRM count
//	  16  u32 curve table offset
//	  20  u32 LRM table offset
//	curve table: curve count x u32 record offsets
//	curve record:
//	  u32 point count, then point count x (f64 x, f64 y)
//	LRM table: LRM count x u32 record offsets
//	LRM record:
//	  u16 id length, id bytes
//	  u32 curve index
//	  u32 anchor count
//	  anchor count x u32 anchor record offsets
//	anchor record:
//	  u16 name length, name bytes
//	  f64 curve position
//	  f64 scale position
//	  u16 property count
//	  property count x (u16 key length, key, u16 value length, value)
//
// A payload may instead start with the magic "LRSZ": the four magic bytes
// followed by an s2-compressed block holding a complete LRSB payload.
// Compression is a file-at-rest concern; Open decompresses transparently
// and the decompressed buffer is then owned by the reader.
//
// The offset tables are what make the format random-access: a consumer can
// reach any curve, LRM or anchor without decoding the records before it.
// Producers and consumers must target the same version; a mismatch is a
// MalformedError, never a best-effort read.
package wire

import "fmt"

const (
	magicRaw        = "LRSB"
	magicCompressed = "LRSZ"

	// Version is the format version this package reads and writes.
	Version = 1

	headerSize = 24
)

// MalformedError reports a payload that cannot be parsed: bad magic, a
// version mismatch, a structurally invalid offset, or semantically invalid
// content found while loading. Loading stops at the first such error; no
// partial view is returned. Offset is negative when the error is not tied
// to a byte position.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Offset < 0 {
		return "malformed LRS payload: " + e.Reason
	}
	return fmt.Sprintf("malformed LRS payload at offset %d: %s", e.Offset, e.Reason)
}

func malformedf(offset int, format string, args ...any) *MalformedError {
	return &MalformedError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Property is one ordered key/value pair attached to an anchor.
type Property struct {
	Key   string
	Value string
}
