package wire

// LengthTag selects the width of a string length prefix. A string of
// length L is encoded as a 2-bit tag followed by an (8 << tag)-bit
// length, so short strings pay 10 bits of overhead while lengths up to
// 2^64-1 stay representable.
type LengthTag uint8

const (
	// Length8 prefixes lengths 0..255.
	Length8 LengthTag = iota

	// Length16 prefixes lengths 256..65535.
	Length16

	// Length32 prefixes lengths up to 2^32-1.
	Length32

	// Length64 prefixes lengths up to 2^64-1.
	Length64
)

// LengthTagBits is the width of the tag itself.
const LengthTagBits = 2

// LengthTagFor returns the smallest tag whose prefix can hold n.
func LengthTagFor(n uint64) LengthTag {
	switch {
	case n <= 0xFF:
		return Length8
	case n <= 0xFFFF:
		return Length16
	case n <= 0xFFFFFFFF:
		return Length32
	default:
		return Length64
	}
}

// LengthBits returns the width of the length value selected by the tag.
func (t LengthTag) LengthBits() int {
	return 8 << t
}

// PrefixBits returns the total on-wire size of the prefix: the tag plus
// the length value.
func (t LengthTag) PrefixBits() int {
	return LengthTagBits + t.LengthBits()
}

// IsValid reports whether the tag is one of the four defined widths.
func (t LengthTag) IsValid() bool {
	return t <= Length64
}

// String returns a human-readable name for the tag.
func (t LengthTag) String() string {
	switch t {
	case Length8:
		return "Length8"
	case Length16:
		return "Length16"
	case Length32:
		return "Length32"
	case Length64:
		return "Length64"
	default:
		return "Unknown"
	}
}
