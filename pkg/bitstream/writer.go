package bitstream

import (
	"math"

	"github.com/nalchi-net/nalchi/internal/wire"
	"github.com/nalchi-net/nalchi/pkg/payload"
)

// Writer packs typed values into a caller-supplied buffer at bit
// granularity. Values accumulate in a 64-bit scratch register and drain
// to the buffer one little-endian 32-bit word at a time, so the physical
// buffer must cover the logical length ceiled to a word multiple.
//
// Writer state is sticky on failure: after the first error every write
// is a no-op until Bind or Restart. The final partial word stays in the
// scratch register until FlushFinal is called; writing after FlushFinal
// fails the stream.
//
// A Writer must not be used from more than one goroutine at a time.
// Writers are cheap; use one per worker.
type Writer struct {
	buf   []byte
	words int // whole words available in buf

	scratch     uint64 // low scratchBits bits hold pending data
	scratchBits int
	wordIndex   int

	totalBits int64
	usedBits  int64

	initErr error
	err     error

	finalFlushed bool
}

// NewWriter returns an unbound writer. Every operation fails with
// ErrNotBound until Bind is called.
func NewWriter() *Writer {
	w := &Writer{}
	w.Reset()
	return w
}

// NewWriterBuffer returns a writer over buf limited to logicalBytes.
// See Bind for the validity rules.
func NewWriterBuffer(buf []byte, logicalBytes int) *Writer {
	w := &Writer{}
	w.Bind(buf, logicalBytes)
	return w
}

// NewWriterPayload returns a writer filling p up to its requested size.
func NewWriterPayload(p *payload.Payload) *Writer {
	w := &Writer{}
	w.BindPayload(p)
	return w
}

// Bind attaches the writer to buf with a logical limit of logicalBytes
// and restarts it. The binding is invalid when buf holds no whole word
// or cannot cover logicalBytes ceiled to a word multiple; an invalid
// binding leaves the writer failed with ErrInvalidBuffer until the next
// Bind.
//
// logicalBytes may be smaller than the buffer so that only part of the
// trailing word is writable.
func (w *Writer) Bind(buf []byte, logicalBytes int) {
	w.buf = buf
	w.words = len(buf) / wire.WordSize
	w.totalBits = 8 * int64(logicalBytes)
	w.initErr = nil
	if buf == nil || w.words == 0 || logicalBytes <= 0 ||
		wire.CeilWords(int64(logicalBytes)) > int64(wire.WordSize*w.words) {
		w.initErr = ErrInvalidBuffer
	}
	w.Restart()
}

// BindPayload attaches the writer to a shared payload's data region,
// using the payload's requested size as the logical limit, and marks the
// payload as bit-stream filled so the send path rounds its on-wire
// length up to a word multiple.
func (w *Writer) BindPayload(p *payload.Payload) {
	if p == nil || p.Data() == nil {
		w.buf = nil
		w.words = 0
		w.totalBits = 0
		w.initErr = ErrInvalidBuffer
		w.Restart()
		return
	}
	p.MarkBitStreamUsed()
	w.Bind(p.Data(), int(p.Size()))
}

// Restart clears the session state so the writer can pack from the
// start of the current buffer again.
func (w *Writer) Restart() {
	w.scratch = 0
	w.scratchBits = 0
	w.wordIndex = 0
	w.usedBits = 0
	w.err = w.initErr
	w.finalFlushed = false
}

// Reset drops the buffer binding entirely, returning the writer to the
// unbound state.
func (w *Writer) Reset() {
	w.buf = nil
	w.words = 0
	w.totalBits = 0
	w.initErr = ErrNotBound
	w.Restart()
}

// Err returns the sticky error, if any.
func (w *Writer) Err() error {
	return w.err
}

// Fail reports whether the stream has failed. Once true, every write is
// a no-op until Bind or Restart.
func (w *Writer) Fail() bool {
	return w.err != nil
}

// TotalBits returns the logical capacity of the stream in bits.
func (w *Writer) TotalBits() int64 { return w.totalBits }

// TotalBytes returns the logical capacity of the stream in bytes.
func (w *Writer) TotalBytes() int64 { return w.totalBits / 8 }

// UsedBits returns the number of bits written so far.
func (w *Writer) UsedBits() int64 { return w.usedBits }

// UsedBytes returns the number of bytes the written bits occupy.
func (w *Writer) UsedBytes() int64 { return wire.CeilBytes(w.usedBits) }

// UnusedBits returns the remaining capacity in bits.
func (w *Writer) UnusedBits() int64 { return w.totalBits - w.usedBits }

// UnusedBytes returns the remaining capacity in bytes.
func (w *Writer) UnusedBytes() int64 { return w.TotalBytes() - w.UsedBytes() }

// setErr records the first error.
func (w *Writer) setErr(err error) {
	if w.err == nil {
		w.err = err
	}
}

// checkWrite reports whether a write may proceed, failing the stream on
// a write after the final flush.
func (w *Writer) checkWrite() bool {
	if w.err != nil {
		return false
	}
	if w.finalFlushed {
		w.setErr(ErrWriteAfterFinalFlush)
		return false
	}
	return true
}

// flushWord drains the low word of the scratch register into the buffer.
// Calling this with fewer than WordBits pending writes the partial word
// as-is, so outside the final flush it must only run on a full scratch.
func (w *Writer) flushWord() {
	wire.PutWord(w.buf, w.wordIndex, uint32(w.scratch))
	w.wordIndex++
	w.scratch >>= wire.WordBits
	w.scratchBits -= wire.WordBits
	if w.scratchBits < 0 {
		w.scratchBits = 0
	}
}

// appendBits appends the low count bits of value to the stream.
// count must be in (0, 64] and value must have no bits set at or above
// count. Fails the stream with ErrOverflow when the bits do not fit.
func (w *Writer) appendBits(value uint64, count int) {
	if w.usedBits+int64(count) > w.totalBits {
		w.setErr(ErrOverflow)
		return
	}

	low := value
	lowBits := count
	if count > wire.WordBits {
		low = value & (1<<wire.WordBits - 1)
		lowBits = wire.WordBits
	}

	w.scratch |= low << w.scratchBits
	w.scratchBits += lowBits
	if w.scratchBits >= wire.WordBits {
		w.flushWord()
	}

	if highBits := count - lowBits; highBits > 0 {
		w.scratch |= (value >> wire.WordBits) << w.scratchBits
		w.scratchBits += highBits
		if w.scratchBits >= wire.WordBits {
			w.flushWord()
		}
	}

	w.usedBits += int64(count)
}

// FlushFinal drains the remaining scratch bits as one trailing word.
// Must only be called when writing is done: any later write fails the
// stream. Idempotent; no-op on a failed stream.
func (w *Writer) FlushFinal() *Writer {
	if w.err != nil {
		return w
	}
	w.finalFlushed = true
	if w.scratchBits > 0 {
		w.flushWord()
	}
	return w
}

// WriteBool writes b as a single bit.
func (w *Writer) WriteBool(b bool) *Writer {
	if !w.checkWrite() {
		return w
	}
	var v uint64
	if b {
		v = 1
	}
	w.appendBits(v, 1)
	return w
}

// WriteUint8 writes v using exactly the bit width of max-min.
// Fails the stream when min >= max or v lies outside [min, max].
func (w *Writer) WriteUint8(v, min, max uint8) *Writer {
	if !w.checkWrite() {
		return w
	}
	if min >= max {
		w.setErr(ErrInvalidRange)
		return w
	}
	if v < min || v > max {
		w.setErr(ErrValueOutOfRange)
		return w
	}
	w.appendBits(uint64(v-min), wire.Width64(uint64(max-min)))
	return w
}

// WriteUint16 writes v using exactly the bit width of max-min.
func (w *Writer) WriteUint16(v, min, max uint16) *Writer {
	if !w.checkWrite() {
		return w
	}
	if min >= max {
		w.setErr(ErrInvalidRange)
		return w
	}
	if v < min || v > max {
		w.setErr(ErrValueOutOfRange)
		return w
	}
	w.appendBits(uint64(v-min), wire.Width64(uint64(max-min)))
	return w
}

// WriteUint32 writes v using exactly the bit width of max-min.
func (w *Writer) WriteUint32(v, min, max uint32) *Writer {
	if !w.checkWrite() {
		return w
	}
	if min >= max {
		w.setErr(ErrInvalidRange)
		return w
	}
	if v < min || v > max {
		w.setErr(ErrValueOutOfRange)
		return w
	}
	w.appendBits(uint64(v-min), wire.Width64(uint64(max-min)))
	return w
}

// WriteUint64 writes v using exactly the bit width of max-min. Values
// wider than a word drain in two halves, low word first.
func (w *Writer) WriteUint64(v, min, max uint64) *Writer {
	if !w.checkWrite() {
		return w
	}
	if min >= max {
		w.setErr(ErrInvalidRange)
		return w
	}
	if v < min || v > max {
		w.setErr(ErrValueOutOfRange)
		return w
	}
	w.appendBits(v-min, wire.Width64(max-min))
	return w
}

// WriteInt8 writes v using exactly the bit width of the unsigned
// difference max-min.
func (w *Writer) WriteInt8(v, min, max int8) *Writer {
	if !w.checkWrite() {
		return w
	}
	if min >= max {
		w.setErr(ErrInvalidRange)
		return w
	}
	if v < min || v > max {
		w.setErr(ErrValueOutOfRange)
		return w
	}
	w.appendBits(uint64(uint8(v)-uint8(min)), wire.Width64(uint64(uint8(max)-uint8(min))))
	return w
}

// WriteInt16 writes v using exactly the bit width of the unsigned
// difference max-min.
func (w *Writer) WriteInt16(v, min, max int16) *Writer {
	if !w.checkWrite() {
		return w
	}
	if min >= max {
		w.setErr(ErrInvalidRange)
		return w
	}
	if v < min || v > max {
		w.setErr(ErrValueOutOfRange)
		return w
	}
	w.appendBits(uint64(uint16(v)-uint16(min)), wire.Width64(uint64(uint16(max)-uint16(min))))
	return w
}

// WriteInt32 writes v using exactly the bit width of the unsigned
// difference max-min.
func (w *Writer) WriteInt32(v, min, max int32) *Writer {
	if !w.checkWrite() {
		return w
	}
	if min >= max {
		w.setErr(ErrInvalidRange)
		return w
	}
	if v < min || v > max {
		w.setErr(ErrValueOutOfRange)
		return w
	}
	w.appendBits(uint64(uint32(v)-uint32(min)), wire.Width64(uint64(uint32(max)-uint32(min))))
	return w
}

// WriteInt64 writes v using exactly the bit width of the unsigned
// difference max-min.
func (w *Writer) WriteInt64(v, min, max int64) *Writer {
	if !w.checkWrite() {
		return w
	}
	if min >= max {
		w.setErr(ErrInvalidRange)
		return w
	}
	if v < min || v > max {
		w.setErr(ErrValueOutOfRange)
		return w
	}
	w.appendBits(uint64(v)-uint64(min), wire.Width64(uint64(max)-uint64(min)))
	return w
}

// WriteFloat32 writes the IEEE-754 bit pattern of v in full width.
func (w *Writer) WriteFloat32(v float32) *Writer {
	if !w.checkWrite() {
		return w
	}
	w.appendBits(uint64(math.Float32bits(v)), 32)
	return w
}

// WriteFloat64 writes the IEEE-754 bit pattern of v in full width.
func (w *Writer) WriteFloat64(v float64) *Writer {
	if !w.checkWrite() {
		return w
	}
	w.appendBits(math.Float64bits(v), 64)
	return w
}

// WriteBytes writes each byte of data as an 8-bit field, in caller
// order with no byte swapping. Fails atomically on overflow: either
// every byte is written or none.
func (w *Writer) WriteBytes(data []byte) *Writer {
	if !w.checkWrite() {
		return w
	}
	if w.usedBits+8*int64(len(data)) > w.totalBits {
		w.setErr(ErrOverflow)
		return w
	}
	for _, b := range data {
		w.appendBits(uint64(b), 8)
	}
	return w
}

// beginString writes the self-describing length prefix for n units of
// unitBits each, after checking that the prefix and every unit fit.
// A string therefore lands atomically: on overflow nothing is written.
func (w *Writer) beginString(n uint64, unitBits int) bool {
	if !w.checkWrite() {
		return false
	}
	tag := wire.LengthTagFor(n)
	need := int64(tag.PrefixBits()) + int64(n)*int64(unitBits)
	if need < 0 || w.usedBits+need > w.totalBits {
		w.setErr(ErrOverflow)
		return false
	}
	w.appendBits(uint64(tag), wire.LengthTagBits)
	w.appendBits(n, tag.LengthBits())
	return true
}

// WriteString writes a length prefix followed by each byte of s as an
// 8-bit unit.
func (w *Writer) WriteString(s string) *Writer {
	if !w.beginString(uint64(len(s)), 8) {
		return w
	}
	for i := 0; i < len(s); i++ {
		w.appendBits(uint64(s[i]), 8)
	}
	return w
}

// WriteString16 writes a length prefix followed by each unit as a
// 16-bit value, for UTF-16 or raw 16-bit character data.
func (w *Writer) WriteString16(units []uint16) *Writer {
	if !w.beginString(uint64(len(units)), 16) {
		return w
	}
	for _, u := range units {
		w.appendBits(uint64(u), 16)
	}
	return w
}

// WriteString32 writes a length prefix followed by each rune as a
// 32-bit value.
func (w *Writer) WriteString32(runes []rune) *Writer {
	if !w.beginString(uint64(len(runes)), 32) {
		return w
	}
	for _, r := range runes {
		w.appendBits(uint64(uint32(r)), 32)
	}
	return w
}
