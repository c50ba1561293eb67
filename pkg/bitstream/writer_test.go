package bitstream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nalchi-net/nalchi/pkg/payload"
)

func TestWriterUnbound(t *testing.T) {
	w := NewWriter()
	if !w.Fail() {
		t.Fatal("unbound writer should be failed")
	}
	if !errors.Is(w.Err(), ErrNotBound) {
		t.Errorf("Err() = %v, want ErrNotBound", w.Err())
	}

	w.WriteBool(true)
	if w.UsedBits() != 0 {
		t.Errorf("UsedBits() = %d, want 0", w.UsedBits())
	}
}

func TestWriterBindValidation(t *testing.T) {
	tests := []struct {
		name         string
		buf          []byte
		logicalBytes int
		wantFail     bool
	}{
		{"nil buffer", nil, 4, true},
		{"empty buffer", []byte{}, 0, true},
		{"under one word", make([]byte, 3), 3, true},
		{"zero logical", make([]byte, 8), 0, true},
		{"negative logical", make([]byte, 8), -1, true},
		{"logical exceeds physical", make([]byte, 8), 9, true},
		{"ceiled logical exceeds whole words", make([]byte, 7), 5, true},
		{"exact", make([]byte, 8), 8, false},
		{"partial final word", make([]byte, 8), 5, false},
		{"single word", make([]byte, 4), 4, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWriterBuffer(tc.buf, tc.logicalBytes)
			if w.Fail() != tc.wantFail {
				t.Errorf("Fail() = %v, want %v (err=%v)", w.Fail(), tc.wantFail, w.Err())
			}
			if tc.wantFail && !errors.Is(w.Err(), ErrInvalidBuffer) {
				t.Errorf("Err() = %v, want ErrInvalidBuffer", w.Err())
			}
		})
	}
}

func TestWriterCapacityAccessors(t *testing.T) {
	w := NewWriterBuffer(make([]byte, 8), 5)
	if w.TotalBits() != 40 {
		t.Errorf("TotalBits() = %d, want 40", w.TotalBits())
	}
	if w.TotalBytes() != 5 {
		t.Errorf("TotalBytes() = %d, want 5", w.TotalBytes())
	}

	w.WriteUint8(3, 0, 7) // 3 bits
	if w.UsedBits() != 3 {
		t.Errorf("UsedBits() = %d, want 3", w.UsedBits())
	}
	if w.UsedBytes() != 1 {
		t.Errorf("UsedBytes() = %d, want 1", w.UsedBytes())
	}
	if w.UnusedBits() != 37 {
		t.Errorf("UnusedBits() = %d, want 37", w.UnusedBits())
	}
	if w.UnusedBytes() != 4 {
		t.Errorf("UnusedBytes() = %d, want 4", w.UnusedBytes())
	}
}

func TestWriterLittleEndianWire(t *testing.T) {
	// 200 in bits 0-7, a set bit at 8, 1000 in bits 9-18.
	buf := make([]byte, 4)
	w := NewWriterBuffer(buf, 4)
	w.WriteUint8(200, 0, 255).
		WriteBool(true).
		WriteUint16(1000, 0, 1023).
		FlushFinal()
	if w.Fail() {
		t.Fatalf("unexpected failure: %v", w.Err())
	}
	if w.UsedBits() != 19 {
		t.Errorf("UsedBits() = %d, want 19", w.UsedBits())
	}
	if w.UsedBytes() != 3 {
		t.Errorf("UsedBytes() = %d, want 3", w.UsedBytes())
	}

	// 200 | 1<<8 | 1000<<9 = 0x0007D1C8, little-endian on the wire.
	want := []byte{0xC8, 0xD1, 0x07, 0x00}
	if !bytes.Equal(buf, want) {
		t.Errorf("buf = %x, want %x", buf, want)
	}
}

func TestWriterRangeValidation(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w *Writer)
		wantErr error
	}{
		{"min equals max", func(w *Writer) { w.WriteUint32(5, 5, 5) }, ErrInvalidRange},
		{"min above max", func(w *Writer) { w.WriteUint32(5, 7, 3) }, ErrInvalidRange},
		{"below min", func(w *Writer) { w.WriteUint32(1, 2, 9) }, ErrValueOutOfRange},
		{"above max", func(w *Writer) { w.WriteUint32(10, 2, 9) }, ErrValueOutOfRange},
		{"signed below min", func(w *Writer) { w.WriteInt16(-8, -7, 7) }, ErrValueOutOfRange},
		{"signed inverted", func(w *Writer) { w.WriteInt64(0, 10, -10) }, ErrInvalidRange},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, 16)
			w := NewWriterBuffer(buf, 16)
			tc.write(w)
			if !errors.Is(w.Err(), tc.wantErr) {
				t.Errorf("Err() = %v, want %v", w.Err(), tc.wantErr)
			}
			if w.UsedBits() != 0 {
				t.Errorf("failed write consumed %d bits, want 0", w.UsedBits())
			}
			for _, b := range buf {
				if b != 0 {
					t.Fatalf("failed write touched the buffer: %x", buf)
				}
			}
		})
	}
}

func TestWriterBitEconomy(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		bits  int64
	}{
		{"two-value range", func(w *Writer) { w.WriteUint8(0, 0, 1) }, 1},
		{"range 0..7", func(w *Writer) { w.WriteUint32(5, 0, 7) }, 3},
		{"range 0..8", func(w *Writer) { w.WriteUint32(5, 0, 8) }, 4},
		{"range 0..255", func(w *Writer) { w.WriteUint8(200, 0, 255) }, 8},
		{"range 0..1023", func(w *Writer) { w.WriteUint16(1000, 0, 1023) }, 10},
		{"shifted range", func(w *Writer) { w.WriteUint32(1005, 1000, 1007) }, 3},
		{"signed range", func(w *Writer) { w.WriteInt32(0, -4, 3) }, 3},
		{"full u32", func(w *Writer) { w.WriteUint32(0, 0, 1<<32-1) }, 32},
		{"full u64", func(w *Writer) { w.WriteUint64(0, 0, 1<<64-1) }, 64},
		{"u64 33-bit span", func(w *Writer) { w.WriteUint64(0, 0, 1<<32) }, 33},
		{"bool", func(w *Writer) { w.WriteBool(true) }, 1},
		{"float32", func(w *Writer) { w.WriteFloat32(1.5) }, 32},
		{"float64", func(w *Writer) { w.WriteFloat64(1.5) }, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWriterBuffer(make([]byte, 16), 16)
			tc.write(w)
			if w.Fail() {
				t.Fatalf("unexpected failure: %v", w.Err())
			}
			if w.UsedBits() != tc.bits {
				t.Errorf("UsedBits() = %d, want %d", w.UsedBits(), tc.bits)
			}
		})
	}
}

func TestWriterOverflow(t *testing.T) {
	buf := make([]byte, 4)
	w := NewWriterBuffer(buf, 4)

	w.WriteUint32(0xDEADBEEF, 0, 1<<32-1)
	if w.Fail() {
		t.Fatalf("32-bit write into 32-bit buffer failed: %v", w.Err())
	}
	if w.UsedBits() != 32 {
		t.Errorf("UsedBits() = %d, want 32", w.UsedBits())
	}

	w.WriteUint8(0, 0, 255)
	if !errors.Is(w.Err(), ErrOverflow) {
		t.Errorf("Err() = %v, want ErrOverflow", w.Err())
	}

	// Everything before the offending write is still intact.
	if !bytes.Equal(buf, []byte{0xEF, 0xBE, 0xAD, 0xDE}) {
		t.Errorf("buf = %x, want efbeadde", buf)
	}
}

func TestWriterFailureStickiness(t *testing.T) {
	w := NewWriterBuffer(make([]byte, 4), 4)
	w.WriteUint32(5, 7, 3) // invalid range
	if !w.Fail() {
		t.Fatal("expected failure")
	}

	// No later operation clears the flag.
	w.WriteBool(true)
	w.WriteFloat32(1)
	w.FlushFinal()
	if !errors.Is(w.Err(), ErrInvalidRange) {
		t.Errorf("Err() = %v, want first error preserved", w.Err())
	}
	if w.UsedBits() != 0 {
		t.Errorf("failed stream consumed %d bits", w.UsedBits())
	}

	// Restart clears it.
	w.Restart()
	if w.Fail() {
		t.Errorf("Restart did not clear failure: %v", w.Err())
	}
	w.WriteBool(true)
	if w.Fail() {
		t.Errorf("write after Restart failed: %v", w.Err())
	}
}

func TestWriterWriteAfterFinalFlush(t *testing.T) {
	w := NewWriterBuffer(make([]byte, 8), 8)
	w.WriteBool(true).FlushFinal()
	if w.Fail() {
		t.Fatalf("unexpected failure: %v", w.Err())
	}

	w.WriteBool(false)
	if !errors.Is(w.Err(), ErrWriteAfterFinalFlush) {
		t.Errorf("Err() = %v, want ErrWriteAfterFinalFlush", w.Err())
	}
}

func TestWriterFlushFinalIdempotent(t *testing.T) {
	buf := make([]byte, 8)
	w := NewWriterBuffer(buf, 8)
	w.WriteUint16(999, 0, 1023)
	w.FlushFinal()
	snapshot := append([]byte(nil), buf...)
	idx, used := w.wordIndex, w.UsedBits()

	w.FlushFinal()
	if w.Fail() {
		t.Errorf("second FlushFinal failed: %v", w.Err())
	}
	if !bytes.Equal(buf, snapshot) || w.wordIndex != idx || w.UsedBits() != used {
		t.Error("second FlushFinal changed observable state")
	}
}

func TestWriterInvariants(t *testing.T) {
	w := NewWriterBuffer(make([]byte, 32), 32)
	check := func() {
		t.Helper()
		if w.scratch>>32 != 0 {
			t.Fatalf("scratch high half dirty: %#x", w.scratch)
		}
		if w.scratchBits < 0 || w.scratchBits >= 32 {
			t.Fatalf("scratchBits = %d out of [0, 32)", w.scratchBits)
		}
		if got := 32*int64(w.wordIndex) + int64(w.scratchBits); got != w.usedBits {
			t.Fatalf("usedBits = %d, want 32*wordIndex+scratchBits = %d", w.usedBits, got)
		}
		if w.usedBits > w.totalBits {
			t.Fatalf("usedBits %d exceeds totalBits %d", w.usedBits, w.totalBits)
		}
	}

	check()
	w.WriteUint32(5, 0, 7)
	check()
	w.WriteUint64(1<<40, 0, 1<<64-1)
	check()
	w.WriteUint16(777, 0, 1023)
	check()
	w.WriteFloat64(3.25)
	check()
	w.WriteBool(true)
	check()
	if w.Fail() {
		t.Fatalf("unexpected failure: %v", w.Err())
	}
}

func TestWriterStringAtomicOverflow(t *testing.T) {
	buf := make([]byte, 4)
	w := NewWriterBuffer(buf, 4)
	w.WriteString("too long for four bytes")
	if !errors.Is(w.Err(), ErrOverflow) {
		t.Errorf("Err() = %v, want ErrOverflow", w.Err())
	}
	if w.UsedBits() != 0 {
		t.Errorf("overflowing string consumed %d bits, want 0", w.UsedBits())
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("overflowing string touched the buffer: %x", buf)
		}
	}
}

func TestWriterBytesAtomicOverflow(t *testing.T) {
	w := NewWriterBuffer(make([]byte, 4), 4)
	w.WriteBytes([]byte{1, 2, 3, 4, 5})
	if !errors.Is(w.Err(), ErrOverflow) {
		t.Errorf("Err() = %v, want ErrOverflow", w.Err())
	}
	if w.UsedBits() != 0 {
		t.Errorf("overflowing bytes consumed %d bits, want 0", w.UsedBits())
	}
}

func TestWriterBindPayload(t *testing.T) {
	p := payload.Allocate(5)
	if p == nil {
		t.Fatal("Allocate(5) = nil")
	}
	defer p.ForceDeallocate()

	w := NewWriterPayload(p)
	if w.Fail() {
		t.Fatalf("payload bind failed: %v", w.Err())
	}
	if !p.UsedBitStream() {
		t.Error("binding a writer did not mark the payload")
	}
	if w.TotalBytes() != 5 {
		t.Errorf("TotalBytes() = %d, want 5", w.TotalBytes())
	}

	// The word-ceiled region admits the final partial-word flush.
	w.WriteUint64(1<<40-1, 0, 1<<40-1) // 40 bits, exactly the logical capacity
	w.FlushFinal()
	if w.Fail() {
		t.Fatalf("write to logical capacity failed: %v", w.Err())
	}

	w2 := NewWriterPayload(nil)
	if !errors.Is(w2.Err(), ErrInvalidBuffer) {
		t.Errorf("nil payload bind: Err() = %v, want ErrInvalidBuffer", w2.Err())
	}
}

func TestWriterResetDropsBinding(t *testing.T) {
	w := NewWriterBuffer(make([]byte, 4), 4)
	w.WriteBool(true)
	w.Reset()
	if !errors.Is(w.Err(), ErrNotBound) {
		t.Errorf("Err() after Reset = %v, want ErrNotBound", w.Err())
	}
	w.Bind(make([]byte, 4), 4)
	if w.Fail() {
		t.Errorf("rebind after Reset failed: %v", w.Err())
	}
}
