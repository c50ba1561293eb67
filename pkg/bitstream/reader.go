package bitstream

import (
	"math"

	"github.com/nalchi-net/nalchi/internal/wire"
	"github.com/nalchi-net/nalchi/pkg/payload"
)

// Reader unpacks values from a buffer produced by a Writer. Words are
// fetched on demand into a 64-bit scratch register; values come back in
// the order they were written.
//
// Every decoded ranged value is re-validated against its declared
// maximum, since a corrupt or hostile stream can carry any bit pattern
// the field width admits.
//
// Reader state is sticky on failure, like the Writer's. A Reader must
// not be used from more than one goroutine at a time.
type Reader struct {
	buf   []byte
	words int

	scratch     uint64 // low scratchBits bits hold unread data
	scratchBits int
	wordIndex   int

	totalBits int64
	usedBits  int64

	initErr error
	err     error
}

// NewReader returns an unbound reader. Every operation fails with
// ErrNotBound until Bind is called.
func NewReader() *Reader {
	r := &Reader{}
	r.Reset()
	return r
}

// NewReaderBuffer returns a reader over buf limited to logicalBytes.
func NewReaderBuffer(buf []byte, logicalBytes int) *Reader {
	r := &Reader{}
	r.Bind(buf, logicalBytes)
	return r
}

// NewReaderPayload returns a reader over a payload's data region.
func NewReaderPayload(p *payload.Payload) *Reader {
	r := &Reader{}
	r.BindPayload(p)
	return r
}

// Bind attaches the reader to buf with a logical limit of logicalBytes
// and restarts it. The buffer must hold enough whole words to cover
// logicalBytes ceiled to a word multiple; the send path guarantees this
// for bit-stream payloads by rounding the on-wire length up.
func (r *Reader) Bind(buf []byte, logicalBytes int) {
	r.buf = buf
	r.words = len(buf) / wire.WordSize
	r.totalBits = 8 * int64(logicalBytes)
	r.initErr = nil
	if buf == nil || r.words == 0 || logicalBytes <= 0 ||
		wire.CeilWords(int64(logicalBytes)) > int64(wire.WordSize*r.words) {
		r.initErr = ErrInvalidBuffer
	}
	r.Restart()
}

// BindPayload attaches the reader to a payload's data region, using the
// payload's requested size as the logical limit.
func (r *Reader) BindPayload(p *payload.Payload) {
	if p == nil || p.Data() == nil {
		r.buf = nil
		r.words = 0
		r.totalBits = 0
		r.initErr = ErrInvalidBuffer
		r.Restart()
		return
	}
	r.Bind(p.Data(), int(p.Size()))
}

// Restart rewinds the reader to the start of the current buffer.
func (r *Reader) Restart() {
	r.scratch = 0
	r.scratchBits = 0
	r.wordIndex = 0
	r.usedBits = 0
	r.err = r.initErr
}

// Reset drops the buffer binding entirely.
func (r *Reader) Reset() {
	r.buf = nil
	r.words = 0
	r.totalBits = 0
	r.initErr = ErrNotBound
	r.Restart()
}

// Err returns the sticky error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Fail reports whether the stream has failed.
func (r *Reader) Fail() bool {
	return r.err != nil
}

// TotalBits returns the logical capacity of the stream in bits.
func (r *Reader) TotalBits() int64 { return r.totalBits }

// TotalBytes returns the logical capacity of the stream in bytes.
func (r *Reader) TotalBytes() int64 { return r.totalBits / 8 }

// UsedBits returns the number of bits consumed so far.
func (r *Reader) UsedBits() int64 { return r.usedBits }

// UsedBytes returns the number of bytes the consumed bits occupy.
func (r *Reader) UsedBytes() int64 { return wire.CeilBytes(r.usedBits) }

// UnusedBits returns the number of bits left to read.
func (r *Reader) UnusedBits() int64 { return r.totalBits - r.usedBits }

// UnusedBytes returns the number of bytes left to read.
func (r *Reader) UnusedBytes() int64 { return r.TotalBytes() - r.UsedBytes() }

func (r *Reader) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) checkRead() bool {
	return r.err == nil
}

// fetchWord loads the next buffer word into the scratch register above
// the unread bits.
func (r *Reader) fetchWord() {
	r.scratch |= uint64(wire.Word(r.buf, r.wordIndex)) << r.scratchBits
	r.wordIndex++
	r.scratchBits += wire.WordBits
}

// takeBits removes count bits from the scratch register, fetching a
// word if needed. count must be in (0, WordBits] and the capacity check
// must already have passed.
func (r *Reader) takeBits(count int) uint64 {
	if r.scratchBits < count {
		r.fetchWord()
	}
	v := r.scratch & (1<<uint(count) - 1)
	r.scratch >>= uint(count)
	r.scratchBits -= count
	r.usedBits += int64(count)
	return v
}

// fetchBits returns the next count bits, count in (0, 64]. Values wider
// than a word arrive in two halves, low word first, mirroring the
// writer. Fails with ErrExhausted when the stream has fewer bits left.
func (r *Reader) fetchBits(count int) (uint64, bool) {
	if r.usedBits+int64(count) > r.totalBits {
		r.setErr(ErrExhausted)
		return 0, false
	}
	lowBits := count
	if count > wire.WordBits {
		lowBits = wire.WordBits
	}
	v := r.takeBits(lowBits)
	if highBits := count - lowBits; highBits > 0 {
		v |= r.takeBits(highBits) << wire.WordBits
	}
	return v, true
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() bool {
	if !r.checkRead() {
		return false
	}
	v, ok := r.fetchBits(1)
	return ok && v != 0
}

// ReadUint8 reads a value written with the same range. Returns zero and
// fails the stream on a range or capacity violation.
func (r *Reader) ReadUint8(min, max uint8) uint8 {
	if !r.checkRead() {
		return 0
	}
	if min >= max {
		r.setErr(ErrInvalidRange)
		return 0
	}
	span := uint64(max - min)
	v, ok := r.fetchBits(wire.Width64(span))
	if !ok {
		return 0
	}
	if v > span {
		r.setErr(ErrValueOutOfRange)
		return 0
	}
	return min + uint8(v)
}

// ReadUint16 reads a value written with the same range.
func (r *Reader) ReadUint16(min, max uint16) uint16 {
	if !r.checkRead() {
		return 0
	}
	if min >= max {
		r.setErr(ErrInvalidRange)
		return 0
	}
	span := uint64(max - min)
	v, ok := r.fetchBits(wire.Width64(span))
	if !ok {
		return 0
	}
	if v > span {
		r.setErr(ErrValueOutOfRange)
		return 0
	}
	return min + uint16(v)
}

// ReadUint32 reads a value written with the same range.
func (r *Reader) ReadUint32(min, max uint32) uint32 {
	if !r.checkRead() {
		return 0
	}
	if min >= max {
		r.setErr(ErrInvalidRange)
		return 0
	}
	span := uint64(max - min)
	v, ok := r.fetchBits(wire.Width64(span))
	if !ok {
		return 0
	}
	if v > span {
		r.setErr(ErrValueOutOfRange)
		return 0
	}
	return min + uint32(v)
}

// ReadUint64 reads a value written with the same range.
func (r *Reader) ReadUint64(min, max uint64) uint64 {
	if !r.checkRead() {
		return 0
	}
	if min >= max {
		r.setErr(ErrInvalidRange)
		return 0
	}
	span := max - min
	v, ok := r.fetchBits(wire.Width64(span))
	if !ok {
		return 0
	}
	if v > span {
		r.setErr(ErrValueOutOfRange)
		return 0
	}
	return min + v
}

// ReadInt8 reads a value written with the same range.
func (r *Reader) ReadInt8(min, max int8) int8 {
	if !r.checkRead() {
		return 0
	}
	if min >= max {
		r.setErr(ErrInvalidRange)
		return 0
	}
	span := uint64(uint8(max) - uint8(min))
	v, ok := r.fetchBits(wire.Width64(span))
	if !ok {
		return 0
	}
	if v > span {
		r.setErr(ErrValueOutOfRange)
		return 0
	}
	return int8(uint8(min) + uint8(v))
}

// ReadInt16 reads a value written with the same range.
func (r *Reader) ReadInt16(min, max int16) int16 {
	if !r.checkRead() {
		return 0
	}
	if min >= max {
		r.setErr(ErrInvalidRange)
		return 0
	}
	span := uint64(uint16(max) - uint16(min))
	v, ok := r.fetchBits(wire.Width64(span))
	if !ok {
		return 0
	}
	if v > span {
		r.setErr(ErrValueOutOfRange)
		return 0
	}
	return int16(uint16(min) + uint16(v))
}

// ReadInt32 reads a value written with the same range.
func (r *Reader) ReadInt32(min, max int32) int32 {
	if !r.checkRead() {
		return 0
	}
	if min >= max {
		r.setErr(ErrInvalidRange)
		return 0
	}
	span := uint64(uint32(max) - uint32(min))
	v, ok := r.fetchBits(wire.Width64(span))
	if !ok {
		return 0
	}
	if v > span {
		r.setErr(ErrValueOutOfRange)
		return 0
	}
	return int32(uint32(min) + uint32(v))
}

// ReadInt64 reads a value written with the same range.
func (r *Reader) ReadInt64(min, max int64) int64 {
	if !r.checkRead() {
		return 0
	}
	if min >= max {
		r.setErr(ErrInvalidRange)
		return 0
	}
	span := uint64(max) - uint64(min)
	v, ok := r.fetchBits(wire.Width64(span))
	if !ok {
		return 0
	}
	if v > span {
		r.setErr(ErrValueOutOfRange)
		return 0
	}
	return int64(uint64(min) + v)
}

// ReadFloat32 reads a full-width IEEE-754 bit pattern.
func (r *Reader) ReadFloat32() float32 {
	if !r.checkRead() {
		return 0
	}
	v, ok := r.fetchBits(32)
	if !ok {
		return 0
	}
	return math.Float32frombits(uint32(v))
}

// ReadFloat64 reads a full-width IEEE-754 bit pattern.
func (r *Reader) ReadFloat64() float64 {
	if !r.checkRead() {
		return 0
	}
	v, ok := r.fetchBits(64)
	if !ok {
		return 0
	}
	return math.Float64frombits(v)
}

// ReadBytes fills dst with 8-bit fields. Fails atomically on
// exhaustion: either every byte of dst is filled or none.
func (r *Reader) ReadBytes(dst []byte) *Reader {
	if !r.checkRead() {
		return r
	}
	if r.usedBits+8*int64(len(dst)) > r.totalBits {
		r.setErr(ErrExhausted)
		return r
	}
	for i := range dst {
		dst[i] = byte(r.takeBits(8))
	}
	return r
}

// readLengthPrefix consumes a 2-bit width tag and the length it selects.
func (r *Reader) readLengthPrefix() (uint64, bool) {
	tagBits, ok := r.fetchBits(wire.LengthTagBits)
	if !ok {
		return 0, false
	}
	return r.fetchBits(wire.LengthTag(tagBits).LengthBits())
}

// readStringHeader consumes the length prefix and validates it against
// maxUnits, then checks that the declared units fit in the stream.
func (r *Reader) readStringHeader(maxUnits int, unitBits int) (int, bool) {
	if !r.checkRead() {
		return 0, false
	}
	if maxUnits < 0 {
		r.setErr(ErrStringTooLong)
		return 0, false
	}
	n, ok := r.readLengthPrefix()
	if !ok {
		return 0, false
	}
	if n > uint64(maxUnits) {
		r.setErr(ErrStringTooLong)
		return 0, false
	}
	if r.usedBits+int64(n)*int64(unitBits) > r.totalBits {
		r.setErr(ErrExhausted)
		return 0, false
	}
	return int(n), true
}

// ReadString reads a length-prefixed string of 8-bit units. Fails the
// stream when the declared length exceeds maxLength.
func (r *Reader) ReadString(maxLength int) string {
	n, ok := r.readStringHeader(maxLength, 8)
	if !ok {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.takeBits(8))
	}
	return string(b)
}

// ReadString16 reads a length-prefixed string of 16-bit units.
func (r *Reader) ReadString16(maxLength int) []uint16 {
	n, ok := r.readStringHeader(maxLength, 16)
	if !ok {
		return nil
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = uint16(r.takeBits(16))
	}
	return units
}

// ReadString32 reads a length-prefixed string of 32-bit units.
func (r *Reader) ReadString32(maxLength int) []rune {
	n, ok := r.readStringHeader(maxLength, 32)
	if !ok {
		return nil
	}
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = rune(uint32(r.takeBits(32)))
	}
	return runes
}

// PeekStringLength reads the next string's length prefix without
// consuming anything: the stream state, including any sticky error set
// while peeking, is restored before returning. Returns -1 when the
// stream has already failed, the prefix cannot be read, or the length
// does not fit in an int64.
func (r *Reader) PeekStringLength() int64 {
	if r.err != nil {
		return -1
	}

	scratch, scratchBits := r.scratch, r.scratchBits
	wordIndex, usedBits := r.wordIndex, r.usedBits

	n, ok := r.readLengthPrefix()

	r.scratch, r.scratchBits = scratch, scratchBits
	r.wordIndex, r.usedBits = wordIndex, usedBits
	r.err = nil

	if !ok || n > math.MaxInt64 {
		return -1
	}
	return int64(n)
}
