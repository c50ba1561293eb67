// Package wire implements the low-level wire primitives shared by the
// bit stream codecs and the payload allocator: fixed little-endian word
// access, bit-width math, and the self-describing string length tag.
//
// The wire format is word-oriented: data is drained to and fetched from
// the buffer one 32-bit little-endian word at a time, regardless of host
// endianness. Changing WordSize rebases the wire format, so it is a
// constant, not a knob.
package wire

import "encoding/binary"

// Fixed wire constants. The scratch register must be exactly twice the
// word width so that a full word plus a partial write always fits.
const (
	// WordSize is the size in bytes of the buffer drain/fetch unit.
	WordSize = 4

	// WordBits is WordSize in bits.
	WordBits = 8 * WordSize

	// ScratchBits is the width of the staging register.
	ScratchBits = 2 * WordBits
)

// PutWord stores w at buf[4*idx:] in little-endian byte order.
// The buffer must have at least 4*(idx+1) bytes.
func PutWord(buf []byte, idx int, w uint32) {
	binary.LittleEndian.PutUint32(buf[WordSize*idx:], w)
}

// Word loads the little-endian word at buf[4*idx:].
// The buffer must have at least 4*(idx+1) bytes.
func Word(buf []byte, idx int) uint32 {
	return binary.LittleEndian.Uint32(buf[WordSize*idx:])
}
