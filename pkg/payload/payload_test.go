package payload

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/maxatome/go-testdeep/td"
)

// countingAllocator records every Alloc/Free pair for leak accounting.
type countingAllocator struct {
	inner  Allocator
	allocs atomic.Int64
	frees  atomic.Int64
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{inner: HeapAllocator{}}
}

func (c *countingAllocator) Alloc(size int) []byte {
	buf := c.inner.Alloc(size)
	if buf != nil {
		c.allocs.Add(1)
	}
	return buf
}

func (c *countingAllocator) Free(buf []byte) {
	c.frees.Add(1)
	c.inner.Free(buf)
}

func TestAllocateBounds(t *testing.T) {
	tests := []struct {
		name string
		size uint32
		want bool
	}{
		{"zero", 0, false},
		{"one", 1, true},
		{"max", MaxSendSize, true},
		{"over max", MaxSendSize + 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Allocate(tc.size)
			if (p != nil) != tc.want {
				t.Errorf("Allocate(%d) = %v, want allocated=%v", tc.size, p, tc.want)
			}
			if p != nil {
				p.ForceDeallocate()
			}
		})
	}
}

func TestPayloadLayout(t *testing.T) {
	p := AllocateWith(newCountingAllocator(), 5)
	if p == nil {
		t.Fatal("Allocate(5) = nil")
	}
	defer p.ForceDeallocate()

	td.Cmp(t, p.Size(), uint32(5))
	td.Cmp(t, p.WordCeiledSize(), uint32(8))
	td.Cmp(t, len(p.Data()), 8)
	td.Cmp(t, len(p.Bytes()), 5)
	td.Cmp(t, p.InternalAllocSize(), 16) // 8-byte header + 8-byte data region
	td.Cmp(t, p.UsedBitStream(), false)
	td.Cmp(t, p.Refs(), int32(0))

	p.MarkBitStreamUsed()
	td.Cmp(t, p.UsedBitStream(), true)
	td.Cmp(t, p.Size(), uint32(5), "flag must not leak into the size")
}

func TestWordMultipleSizeKeepsExactRegion(t *testing.T) {
	p := Allocate(8)
	if p == nil {
		t.Fatal("Allocate(8) = nil")
	}
	defer p.ForceDeallocate()

	td.Cmp(t, p.WordCeiledSize(), uint32(8))
	td.Cmp(t, len(p.Data()), 8)
}

func TestRefcountFreesExactlyOnce(t *testing.T) {
	alloc := newCountingAllocator()
	p := AllocateWith(alloc, 100)
	if p == nil {
		t.Fatal("Allocate(100) = nil")
	}

	// Four sends share the payload.
	for i := 0; i < 4; i++ {
		p.AddRef()
	}
	td.Cmp(t, p.Refs(), int32(4))

	// Releases in arbitrary order; only the last one frees.
	freed := 0
	for i := 0; i < 4; i++ {
		if p.Release() {
			freed++
		}
	}
	td.Cmp(t, freed, 1)
	td.Cmp(t, alloc.allocs.Load(), int64(1))
	td.Cmp(t, alloc.frees.Load(), int64(1))
}

func TestConcurrentRelease(t *testing.T) {
	const refs = 64

	for iter := 0; iter < 100; iter++ {
		alloc := newCountingAllocator()
		p := AllocateWith(alloc, 256)
		if p == nil {
			t.Fatal("Allocate(256) = nil")
		}
		for i := 0; i < refs; i++ {
			p.AddRef()
		}

		var wg sync.WaitGroup
		var freed atomic.Int32
		for i := 0; i < refs; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if p.Release() {
					freed.Add(1)
				}
			}()
		}
		wg.Wait()

		if freed.Load() != 1 {
			t.Fatalf("iter %d: freed %d times, want 1", iter, freed.Load())
		}
		if alloc.frees.Load() != 1 {
			t.Fatalf("iter %d: allocator saw %d frees, want 1", iter, alloc.frees.Load())
		}
	}
}

func TestForceDeallocateUnsent(t *testing.T) {
	alloc := newCountingAllocator()
	p := AllocateWith(alloc, 32)
	if p == nil {
		t.Fatal("Allocate(32) = nil")
	}

	p.ForceDeallocate()
	td.Cmp(t, alloc.frees.Load(), int64(1))

	// A second call is a no-op on an already-freed handle.
	p.ForceDeallocate()
	td.Cmp(t, alloc.frees.Load(), int64(1))
}

func TestPooledAllocatorReuse(t *testing.T) {
	a := NewPooledAllocator()

	buf := a.Alloc(100)
	if len(buf) != 100 {
		t.Fatalf("Alloc(100) len = %d", len(buf))
	}
	if cap(buf) != 256 {
		t.Errorf("Alloc(100) cap = %d, want tier capacity 256", cap(buf))
	}
	a.Free(buf)

	// Oversized buffers bypass the pools entirely.
	big := a.Alloc(MaxSendSize)
	if len(big) != MaxSendSize {
		t.Fatalf("Alloc(MaxSendSize) len = %d", len(big))
	}
	a.Free(big)

	if a.Alloc(0) != nil {
		t.Error("Alloc(0) != nil")
	}
}

func TestPooledAllocatorTierSelection(t *testing.T) {
	tests := []struct {
		size int
		tier int
	}{
		{1, 0},
		{64, 0},
		{65, 1},
		{256, 1},
		{1024, 2},
		{4096, 3},
		{16384, 4},
		{65536, 5},
		{65537, -1},
	}

	for _, tc := range tests {
		if got := tierIndex(tc.size); got != tc.tier {
			t.Errorf("tierIndex(%d) = %d, want %d", tc.size, got, tc.tier)
		}
	}
}
