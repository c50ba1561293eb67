package bitstream

import "github.com/nalchi-net/nalchi/internal/wire"

// Measurer is a sink-only companion to Writer: it accepts the same
// write calls but only accumulates the bit cost, so a payload can be
// allocated at exactly the measured size before any real write happens.
//
// A Measurer has no capacity and never fails. It applies the writer's
// width formula and ignores the values themselves, so measuring with an
// inverted range reports the width of the wrapped unsigned difference;
// the writer is where ranges are validated.
type Measurer struct {
	usedBits int64
}

// NewMeasurer returns a measurer with zero accumulated bits.
func NewMeasurer() *Measurer {
	return &Measurer{}
}

// Restart clears the accumulated bit count.
func (m *Measurer) Restart() {
	m.usedBits = 0
}

// UsedBits returns the accumulated size in bits.
func (m *Measurer) UsedBits() int64 { return m.usedBits }

// UsedBytes returns the accumulated size in bytes.
func (m *Measurer) UsedBytes() int64 { return wire.CeilBytes(m.usedBits) }

// WriteBool accounts a single bit.
func (m *Measurer) WriteBool(bool) *Measurer {
	m.usedBits++
	return m
}

// WriteUint8 accounts the bit width of max-min.
func (m *Measurer) WriteUint8(_, min, max uint8) *Measurer {
	m.usedBits += int64(wire.Width64(uint64(max - min)))
	return m
}

// WriteUint16 accounts the bit width of max-min.
func (m *Measurer) WriteUint16(_, min, max uint16) *Measurer {
	m.usedBits += int64(wire.Width64(uint64(max - min)))
	return m
}

// WriteUint32 accounts the bit width of max-min.
func (m *Measurer) WriteUint32(_, min, max uint32) *Measurer {
	m.usedBits += int64(wire.Width64(uint64(max - min)))
	return m
}

// WriteUint64 accounts the bit width of max-min.
func (m *Measurer) WriteUint64(_, min, max uint64) *Measurer {
	m.usedBits += int64(wire.Width64(max - min))
	return m
}

// WriteInt8 accounts the bit width of the unsigned difference max-min.
func (m *Measurer) WriteInt8(_, min, max int8) *Measurer {
	m.usedBits += int64(wire.Width64(uint64(uint8(max) - uint8(min))))
	return m
}

// WriteInt16 accounts the bit width of the unsigned difference max-min.
func (m *Measurer) WriteInt16(_, min, max int16) *Measurer {
	m.usedBits += int64(wire.Width64(uint64(uint16(max) - uint16(min))))
	return m
}

// WriteInt32 accounts the bit width of the unsigned difference max-min.
func (m *Measurer) WriteInt32(_, min, max int32) *Measurer {
	m.usedBits += int64(wire.Width64(uint64(uint32(max) - uint32(min))))
	return m
}

// WriteInt64 accounts the bit width of the unsigned difference max-min.
func (m *Measurer) WriteInt64(_, min, max int64) *Measurer {
	m.usedBits += int64(wire.Width64(uint64(max) - uint64(min)))
	return m
}

// WriteFloat32 accounts a full-width 32-bit pattern.
func (m *Measurer) WriteFloat32(float32) *Measurer {
	m.usedBits += 32
	return m
}

// WriteFloat64 accounts a full-width 64-bit pattern.
func (m *Measurer) WriteFloat64(float64) *Measurer {
	m.usedBits += 64
	return m
}

// WriteBytes accounts 8 bits per byte.
func (m *Measurer) WriteBytes(data []byte) *Measurer {
	m.usedBits += 8 * int64(len(data))
	return m
}

// WriteString accounts the length prefix plus 8 bits per byte.
func (m *Measurer) WriteString(s string) *Measurer {
	n := uint64(len(s))
	m.usedBits += int64(wire.LengthTagFor(n).PrefixBits()) + 8*int64(len(s))
	return m
}

// WriteString16 accounts the length prefix plus 16 bits per unit.
func (m *Measurer) WriteString16(units []uint16) *Measurer {
	n := uint64(len(units))
	m.usedBits += int64(wire.LengthTagFor(n).PrefixBits()) + 16*int64(len(units))
	return m
}

// WriteString32 accounts the length prefix plus 32 bits per rune.
func (m *Measurer) WriteString32(runes []rune) *Measurer {
	n := uint64(len(runes))
	m.usedBits += int64(wire.LengthTagFor(n).PrefixBits()) + 32*int64(len(runes))
	return m
}
