// Package endian provides byte order utilities for the ZDW wire format.
//
// Every multibyte integer in a ZDW file is little-endian and unsigned, so
// most callers only ever need GetLittleEndianEngine(). The EndianEngine
// interface combines ByteOrder and AppendByteOrder from encoding/binary so
// the same value can be used both for in-place writes into fixed buffers
// (block headers) and for appends onto growing row buffers.
//
// The variable-width helpers (Uvar, PutUvar, AppendUvar) implement the
// caller-specified-width integer codec used for dictionary offsets and
// baselined column values: a value is stored in exactly w bytes, w in 0..8,
// little-endian, and zero-extended to uint64 on read.
package endian

import (
	"encoding/binary"
)

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary
// into a single interface. binary.LittleEndian and binary.BigEndian both
// satisfy it.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine. This is the byte
// order of the ZDW wire format.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// UvarWidth returns the minimum number of bytes required to represent v.
// Zero still occupies one byte.
func UvarWidth(v uint64) int {
	w := 1
	for v >= 256 {
		w++
		v >>= 8
	}

	return w
}

// Uvar reads a w-byte little-endian unsigned value from the front of b,
// zero-extending to uint64. w must be in 0..8 and b must hold at least w
// bytes; w == 0 yields 0.
func Uvar(b []byte, w int) uint64 {
	var v uint64
	for i := 0; i < w; i++ {
		v |= uint64(b[i]) << (8 * i)
	}

	return v
}

// PutUvar writes v into b[0:w] little-endian. Bytes of v above the w-th are
// discarded; the writer guarantees they are zero by construction of the
// column widths.
func PutUvar(b []byte, v uint64, w int) {
	for i := 0; i < w; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// AppendUvar appends the w-byte little-endian representation of v to b and
// returns the extended slice.
func AppendUvar(b []byte, v uint64, w int) []byte {
	for i := 0; i < w; i++ {
		b = append(b, byte(v>>(8*i)))
	}

	return b
}
