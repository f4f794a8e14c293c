package battchip

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"
)

func authenticImage(pseudo uint32) Image {
	var img Image
	copy(img[0:4], []byte{0xED, 0x21, 0x4C, 0xE5})
	img[8] = byte(pseudo)
	img[60] = 0x5A
	img[61] = byte(pseudo >> 8)
	img[62] = byte(pseudo >> 16)
	img[63] = byte(pseudo >> 24)
	return img
}

func TestDecodeCoslight(t *testing.T) {
	var img Image
	copy(img[0:4], []byte{0xED, 0x21, 0x4C, 0xE5})
	img[8] = 0x62
	img[61] = 0x7A
	img[62] = 0x0C
	img[63] = 0xDF

	id := Decode(img)
	if !id.Authentic {
		t.Fatalf("header 0x%08x not accepted", id.Header)
	}
	if id.PseudoID != 0xdf0c7a62 {
		t.Errorf("PseudoID = 0x%08x, want 0xdf0c7a62", id.PseudoID)
	}
	if id.Class != ClassCoslight {
		t.Errorf("Class = %v, want Coslight", id.Class)
	}
	if id.Resistance() != 0x30000 {
		t.Errorf("Resistance = %v, want 0x30000", id.Resistance())
	}
	if id.Resistance().KOhm() != 12 {
		t.Errorf("KOhm = %d, want 12", id.Resistance().KOhm())
	}
}

func TestDecodeKnownVendors(t *testing.T) {
	tests := []struct {
		name       string
		pseudo     uint32
		class      Class
		resistance Resistance
	}{
		{"coslight", PseudoIDCoslight, ClassCoslight, 0x30000},
		{"aac", PseudoIDAAC, ClassAAC, 0x40000},
		{"delsa", PseudoIDDelsa, ClassDelsa, 0x50000},
		{"unknown", 0x12345678, ClassUnknown, 0},
		{"low byte only", 0x00000062, ClassUnknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := authenticImage(tt.pseudo)
			if got := Classify(img); got != tt.class {
				t.Errorf("Classify = %v, want %v", got, tt.class)
			}
			if got := Classify(img).Resistance(); got != tt.resistance {
				t.Errorf("Resistance = %v, want %v", got, tt.resistance)
			}
		})
	}
}

func TestPseudoIDIgnoresByte60(t *testing.T) {
	img := authenticImage(PseudoIDAAC)
	for _, b := range []byte{0x00, 0x01, 0xAA, 0xFF} {
		img[60] = b
		if got := img.PseudoID(); got != PseudoIDAAC {
			t.Fatalf("byte60=%02x: PseudoID = 0x%08x", b, got)
		}
		if Classify(img) != ClassAAC {
			t.Fatalf("byte60=%02x: not classified as AAC", b)
		}
	}
}

func TestBadHeaderIsUnknown(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		var img Image
		rng.Read(img[:])

		// Plant a valid fingerprint so only the header decides.
		pseudo := []uint32{PseudoIDCoslight, PseudoIDAAC, PseudoIDDelsa}[i%3]
		img[8] = byte(pseudo)
		binary.LittleEndian.PutUint32(img[60:], pseudo&pseudoHiMask|uint32(img[60]))

		if img.Header() == headerMagic {
			img[0] ^= 0xFF
		}

		id := Decode(img)
		if id.Authentic || id.Class != ClassUnknown || id.Resistance() != 0 {
			t.Fatalf("image %d with header 0x%08x decoded as %v", i, id.Header, id)
		}
	}
}

func TestHeaderByteOrder(t *testing.T) {
	var img Image
	copy(img[0:4], []byte{0xE5, 0x4C, 0x21, 0xED})
	if Decode(img).Authentic {
		t.Fatal("big endian header must not be accepted")
	}
}

func TestClassifyIsPure(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	img := authenticImage(PseudoIDDelsa)
	rng.Read(img[9:60])

	before := img
	first := Decode(img)
	second := Decode(img)

	if first != second {
		t.Errorf("Decode not idempotent: %v != %v", first, second)
	}
	if img != before {
		t.Error("Decode mutated the image")
	}
}

func TestImageFromBytes(t *testing.T) {
	if _, err := ImageFromBytes(make([]byte, 127)); err == nil {
		t.Error("short dump accepted")
	}

	raw := bytes.Repeat([]byte{0xA5}, ImageSize)
	img, err := ImageFromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img[:], raw) {
		t.Error("image does not match dump")
	}
}

func TestDumpPages(t *testing.T) {
	var img Image
	for i := range img {
		img[i] = byte(i)
	}

	dump := img.Dump()
	lines := bytes.Split(bytes.TrimSpace([]byte(dump)), []byte("\n"))
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if !bytes.HasPrefix(lines[1], []byte("Page 1 20 21 22")) {
		t.Errorf("unexpected page 1: %s", lines[1])
	}
	if img.Page(4) != nil {
		t.Error("page 4 should not exist")
	}
}

func TestClassText(t *testing.T) {
	for _, c := range []Class{ClassUnknown, ClassCoslight, ClassAAC, ClassDelsa} {
		text, err := c.MarshalText()
		if err != nil {
			t.Fatal(err)
		}

		var back Class
		if err := back.UnmarshalText(text); err != nil {
			t.Fatal(err)
		}
		if back != c {
			t.Errorf("%v came back as %v", c, back)
		}
	}
}
