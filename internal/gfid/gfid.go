// Package gfid implements the 128-bit global file identifier used
// throughout the changelog subsystem (spec.md §3) together with its two
// on-disk representations: 16 raw bytes (BINARY encoding) and the 36-char
// canonical UUID form (ASCII encoding).
package gfid

import (
	"encoding/hex"
	"fmt"
)

// Size is the length of a GFID in raw bytes.
const Size = 16

// Len is the length of the canonical ASCII (UUID) form, including hyphens.
const Len = 36

// Gfid is a 128-bit global file identifier, stable for a file's lifetime.
type Gfid [Size]byte

// Nil is the zero GFID, used as a sentinel for "no parent"/"not resolved".
var Nil Gfid

// String renders the canonical 8-4-4-4-12 hex grouping, e.g.
// "f47ac10b-58cc-4372-a567-0e02b2c3d479".
func (g Gfid) String() string {
	var buf [Len]byte
	hex.Encode(buf[0:8], g[0:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], g[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], g[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], g[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:36], g[10:16])
	return string(buf[:])
}

// IsNil reports whether the GFID is the zero value.
func (g Gfid) IsNil() bool {
	return g == Nil
}

// Parse decodes the canonical 36-char ASCII form produced by String.
func Parse(s string) (Gfid, error) {
	var g Gfid
	if len(s) != Len {
		return g, fmt.Errorf("gfid: invalid length %d, want %d", len(s), Len)
	}
	if s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return g, fmt.Errorf("gfid: malformed separator in %q", s)
	}

	segments := [5][2]int{
		{0, 8}, {9, 13}, {14, 18}, {19, 23}, {24, 36},
	}
	raw := make([]byte, 0, Size)
	for _, seg := range segments {
		chunk := make([]byte, (seg[1]-seg[0])/2)
		if _, err := hex.Decode(chunk, []byte(s[seg[0]:seg[1]])); err != nil {
			return Gfid{}, fmt.Errorf("gfid: invalid hex in %q: %w", s, err)
		}
		raw = append(raw, chunk...)
	}
	copy(g[:], raw)
	return g, nil
}

// FromBytes copies a raw 16-byte binary GFID.
func FromBytes(b []byte) (Gfid, error) {
	var g Gfid
	if len(b) != Size {
		return g, fmt.Errorf("gfid: invalid raw length %d, want %d", len(b), Size)
	}
	copy(g[:], b)
	return g, nil
}

// Bytes returns the raw 16-byte binary form.
func (g Gfid) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, g[:])
	return out
}
