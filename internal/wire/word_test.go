package wire

import (
	"bytes"
	"testing"
)

func TestPutWordLittleEndian(t *testing.T) {
	buf := make([]byte, 8)
	PutWord(buf, 0, 0xDEADBEEF)
	PutWord(buf, 1, 0x00000001)

	want := []byte{0xEF, 0xBE, 0xAD, 0xDE, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(buf, want) {
		t.Errorf("buf = %x, want %x", buf, want)
	}
}

func TestWordRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0x7F, 0x80, 0xFFFF, 0xDEADBEEF, 0xFFFFFFFF}
	buf := make([]byte, WordSize*len(values))

	for i, v := range values {
		PutWord(buf, i, v)
	}
	for i, v := range values {
		if got := Word(buf, i); got != v {
			t.Errorf("Word(buf, %d) = %#x, want %#x", i, got, v)
		}
	}
}

func TestWireConstants(t *testing.T) {
	if WordBits != 8*WordSize {
		t.Errorf("WordBits = %d, want %d", WordBits, 8*WordSize)
	}
	if ScratchBits != 2*WordBits {
		t.Errorf("ScratchBits = %d, want %d", ScratchBits, 2*WordBits)
	}
}
