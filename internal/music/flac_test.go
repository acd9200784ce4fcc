package music

import (
	"bytes"
	"testing"
)

func TestBitReaderReadBits(t *testing.T) {
	// 0b10110100, 0b11000000 -> first 12 bits: 1011 0100 1100 = 0xB4C
	data := []byte{0b10110100, 0b11000000}
	br := newBitReader(bytes.NewReader(data))

	v, err := br.readBits(12)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xB4C {
		t.Fatalf("readBits(12) = %x, want %x", v, 0xB4C)
	}
}

func TestBitReaderSignedBits(t *testing.T) {
	// 4-bit two's complement 1111 == -1
	br := newBitReader(bytes.NewReader([]byte{0xF0}))
	v, err := br.readSignedBits(4)
	if err != nil {
		t.Fatal(err)
	}
	if v != -1 {
		t.Fatalf("readSignedBits(4) = %d, want -1", v)
	}
}

func TestBitReaderRiceZigzag(t *testing.T) {
	// quotient=0 (terminator bit set immediately), k=3, remainder=0b010=2
	// -> uval = 2, even -> +1
	data := []byte{0b1010_0000}
	br := newBitReader(bytes.NewReader(data))
	v, err := br.readRice(3)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Fatalf("readRice = %d, want 1", v)
	}
}

func TestBitReaderUTF8SingleByte(t *testing.T) {
	br := newBitReader(bytes.NewReader([]byte{0x42}))
	if err := br.readUTF8(); err != nil {
		t.Fatalf("readUTF8: %v", err)
	}
}

func TestDecodeBlockSizeFixedCodes(t *testing.T) {
	br := newBitReader(bytes.NewReader(nil))
	size, err := decodeBlockSize(br, 1)
	if err != nil || size != 192 {
		t.Fatalf("block size code 1 = %d, %v, want 192", size, err)
	}
}

func TestPlaylistSearchNoMatches(t *testing.T) {
	dir := t.TempDir()
	list, err := Search(dir, "nonexistent song")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Tracks) != 0 {
		t.Fatalf("expected empty playlist, got %d tracks", len(list.Tracks))
	}
	if list.Current() != "" {
		t.Fatal("Current() on empty playlist should be empty")
	}
}

func TestPlaylistCursorWraps(t *testing.T) {
	list := &Playlist{Tracks: []string{"a.flac", "b.flac", "c.flac"}, Cursor: 2}
	list.Next()
	if list.Cursor != 0 {
		t.Fatalf("expected wrap to 0, got %d", list.Cursor)
	}
	list.Previous()
	if list.Cursor != 2 {
		t.Fatalf("expected wrap to 2, got %d", list.Cursor)
	}
}
