// Package payload implements the shared, reference-counted send buffer
// used to fan one serialized blob out to many peers.
//
// A Payload couples an atomic reference count, a size-and-flag word, and
// a word-aligned data region. The allocator hands out a bare handle with
// a zero refcount; attaching the payload to an outbound message
// increments the count, and the transport's release callback decrements
// it, freeing the buffer when the last reference drops. A payload that
// is allocated but never sent must be freed with ForceDeallocate.
package payload

import (
	"sync/atomic"

	"github.com/nalchi-net/nalchi/internal/wire"
)

// MaxSendSize is the transport's per-message byte ceiling.
// Allocation requests above it fail.
const MaxSendSize = 512 * 1024

// headerSize accounts for the refcount and the size-and-flag word in
// InternalAllocSize, matching the single-allocation layout the wire
// contract was designed around.
const headerSize = 8

// usedBitStreamFlag is the high bit of sizeAndFlag. It marks a payload
// filled through a bit stream writer, telling the send path to round the
// on-wire length up to a word multiple so the receiver's reader can
// fetch the trailing word without running past the packet.
const usedBitStreamFlag = 1 << 31

// Payload is a handle to a shared send buffer. The zero value is not
// usable; obtain one from Allocate.
type Payload struct {
	refs        atomic.Int32
	sizeAndFlag uint32
	data        []byte // requested size ceiled to a word multiple
	alloc       Allocator
}

// Allocator provides and reclaims payload data regions.
type Allocator interface {
	// Alloc returns a buffer of length size, or nil on failure.
	Alloc(size int) []byte

	// Free reclaims a buffer previously returned by Alloc.
	Free(buf []byte)
}

// DefaultAllocator backs Allocate. It pools buffers in size tiers.
var DefaultAllocator Allocator = NewPooledAllocator()

// Allocate returns a payload able to hold size bytes, using the default
// allocator. Returns nil if size is zero, exceeds MaxSendSize, or the
// allocator fails. The refcount starts at zero: the caller holds a bare
// handle, not a reference.
func Allocate(size uint32) *Payload {
	return AllocateWith(DefaultAllocator, size)
}

// AllocateWith is Allocate with an explicit allocator. The payload
// returns its buffer to the same allocator when freed.
func AllocateWith(a Allocator, size uint32) *Payload {
	if size == 0 || size > MaxSendSize {
		return nil
	}
	// The data region is ceiled to a word multiple so the last scratch
	// flush of a bit stream writer never lands out of bounds.
	data := a.Alloc(int(wire.CeilWords(int64(size))))
	if data == nil {
		return nil
	}
	return &Payload{
		sizeAndFlag: size,
		data:        data,
		alloc:       a,
	}
}

// Size returns the requested payload size in bytes.
func (p *Payload) Size() uint32 {
	return p.sizeAndFlag &^ usedBitStreamFlag
}

// WordCeiledSize returns Size rounded up to a word multiple: the upper
// bound a bit stream writer may touch.
func (p *Payload) WordCeiledSize() uint32 {
	return uint32(wire.CeilWords(int64(p.Size())))
}

// UsedBitStream reports whether the payload was bound to a bit stream
// writer.
func (p *Payload) UsedBitStream() bool {
	return p.sizeAndFlag&usedBitStreamFlag != 0
}

// MarkBitStreamUsed records that the payload is being filled through a
// bit stream writer. The bit stream package calls this on bind.
func (p *Payload) MarkBitStreamUsed() {
	p.sizeAndFlag |= usedBitStreamFlag
}

// InternalAllocSize returns the full backing allocation size, header
// included. Diagnostic only.
func (p *Payload) InternalAllocSize() int {
	return headerSize + len(p.data)
}

// Data returns the whole word-ceiled data region. Writers that fill the
// payload directly should stay within Bytes; the padding tail exists for
// the word-granular drain.
func (p *Payload) Data() []byte {
	return p.data
}

// Bytes returns the requested-size prefix of the data region.
func (p *Payload) Bytes() []byte {
	return p.data[:p.Size()]
}

// Refs returns the current reference count. Diagnostic only; the value
// may be stale by the time it is observed.
func (p *Payload) Refs() int32 {
	return p.refs.Load()
}

// AddRef takes a reference on behalf of an outbound message.
func (p *Payload) AddRef() {
	p.refs.Add(1)
}

// Release drops one reference. The caller that observes the count reach
// zero frees the buffer; Release reports whether this call freed it.
func (p *Payload) Release() bool {
	if p.refs.Add(-1) == 0 {
		p.ForceDeallocate()
		return true
	}
	return false
}

// ForceDeallocate returns the buffer to its allocator without sending.
// Only call this on a payload that was never attached to a message, or
// from the final Release. The handle must not be used afterwards.
func (p *Payload) ForceDeallocate() {
	if p.data == nil {
		return
	}
	p.alloc.Free(p.data)
	p.data = nil
}
