// Package bitstream provides bit-granular serialization over a
// caller-supplied word buffer, for tightly packed real-time network
// messages.
//
// A Writer packs values through a 64-bit scratch register and drains it
// to the buffer one little-endian 32-bit word at a time; a Reader is its
// mirror image. Integers are range-coded: a value in [min, max] costs
// exactly the bit width of max-min. A Measurer accepts the same write
// calls without a buffer so a payload can be sized before allocation.
//
// Failure is sticky: the first error latches on the stream, every later
// operation is a no-op, and callers check Err or Fail once after a chain
// of calls.
package bitstream

import "errors"

// Sentinel errors for stream failure causes.
// These can be checked using errors.Is().
var (
	// ErrNotBound indicates the stream has no buffer to operate on.
	ErrNotBound = errors.New("bitstream: stream not bound to a buffer")

	// ErrInvalidBuffer indicates a bind with a nil, empty, or too-short buffer.
	ErrInvalidBuffer = errors.New("bitstream: invalid buffer binding")

	// ErrOverflow indicates a write would exceed the stream's capacity.
	ErrOverflow = errors.New("bitstream: write exceeds stream capacity")

	// ErrExhausted indicates a read would run past the end of the stream.
	ErrExhausted = errors.New("bitstream: read exceeds stream capacity")

	// ErrInvalidRange indicates min >= max was passed for a ranged value.
	ErrInvalidRange = errors.New("bitstream: min must be less than max")

	// ErrValueOutOfRange indicates a value outside its declared [min, max].
	ErrValueOutOfRange = errors.New("bitstream: value outside declared range")

	// ErrWriteAfterFinalFlush indicates a write was attempted on a finally
	// flushed writer.
	ErrWriteAfterFinalFlush = errors.New("bitstream: write after final flush")

	// ErrStringTooLong indicates a decoded string length exceeds the
	// caller's limit.
	ErrStringTooLong = errors.New("bitstream: string length exceeds limit")
)
