package payload

import "sync"

// Size-tiered buffer pools for payload reuse on hot send paths.
// Buffers are pooled in size classes: 64, 256, 1024, 4096, 16384, 65536 bytes.
// Larger payloads (up to MaxSendSize) are allocated directly and left to
// the garbage collector.
var tierSizes = [6]int{64, 256, 1024, 4096, 16384, 65536}

// tierIndex returns the pool tier for a given size, or -1 when the size
// is too large to pool.
func tierIndex(size int) int {
	for i, class := range tierSizes {
		if size <= class {
			return i
		}
	}
	return -1
}

// PooledAllocator reuses payload buffers through size-tiered sync.Pools.
// Returned buffers are not zeroed, matching malloc semantics: a payload
// may contain stale bytes beyond what the caller writes.
type PooledAllocator struct {
	tiers [len(tierSizes)]sync.Pool
}

// NewPooledAllocator returns an allocator with one pool per size tier.
func NewPooledAllocator() *PooledAllocator {
	a := &PooledAllocator{}
	for i := range a.tiers {
		capacity := tierSizes[i]
		a.tiers[i].New = func() any {
			return make([]byte, 0, capacity)
		}
	}
	return a
}

// Alloc returns a buffer of length size, reusing a pooled buffer when a
// tier covers the size.
func (a *PooledAllocator) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	idx := tierIndex(size)
	if idx < 0 {
		return make([]byte, size)
	}
	buf := a.tiers[idx].Get().([]byte)
	return buf[:size]
}

// Free returns a buffer to its tier. Oversized buffers are dropped for
// the garbage collector.
func (a *PooledAllocator) Free(buf []byte) {
	c := cap(buf)
	if c == 0 {
		return
	}
	idx := tierIndex(c)
	if idx < 0 {
		return
	}
	// A buffer whose capacity undershoots its tier's class would shrink
	// the pool's guarantee; only return exact-class buffers.
	if c != tierSizes[idx] {
		return
	}
	a.tiers[idx].Put(buf[:0])
}

// HeapAllocator allocates fresh buffers and lets the garbage collector
// reclaim them. Useful as a baseline and in tests.
type HeapAllocator struct{}

// Alloc returns a fresh zeroed buffer of length size.
func (HeapAllocator) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	return make([]byte, size)
}

// Free is a no-op; the garbage collector reclaims the buffer.
func (HeapAllocator) Free([]byte) {}
