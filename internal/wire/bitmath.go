package wire

import "math/bits"

// CeilWords returns the smallest word multiple that covers n bytes.
func CeilWords(n int64) int64 {
	return (n + (WordSize - 1)) &^ (WordSize - 1)
}

// CeilBytes returns the smallest byte multiple that covers n bits.
func CeilBytes(n int64) int64 {
	return ((n + 7) &^ 7) / 8
}

// Width64 returns the number of bits required to represent v.
// Width64(0) is 0; callers encoding a range must validate min < max
// first so a field is never zero bits wide.
func Width64(v uint64) int {
	return bits.Len64(v)
}
