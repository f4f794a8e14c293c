package battchip

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// ImageSize is the size of the BQ2022 EPROM field, 1024 bits.
const ImageSize = 128

// PageSize is the EPROM page size, the image holds four pages.
const PageSize = 32

// Image is a raw copy of the chip memory field.
type Image [ImageSize]byte

const (
	headerMagic uint32 = 0xE54C21ED

	offsetHeader   = 0
	offsetPseudoLo = 8
	offsetPseudoHi = 60

	pseudoHiMask uint32 = 0xFFFFFF00
)

// Known pseudo identities, built from bytes 8, 61, 62 and 63.
const (
	PseudoIDCoslight uint32 = 0xdf0c7a62
	PseudoIDAAC      uint32 = 0xaacaacaa
	PseudoIDDelsa    uint32 = 0x8412e562
)

// Header returns the little endian word at the start of the image.
func (img *Image) Header() uint32 {
	return binary.LittleEndian.Uint32(img[offsetHeader:])
}

// PseudoID returns the vendor fingerprint: the upper three bytes of the word
// at offset 60 merged with byte 8.
func (img *Image) PseudoID() uint32 {
	hi := binary.LittleEndian.Uint32(img[offsetPseudoHi:])
	return hi&pseudoHiMask | uint32(img[offsetPseudoLo])
}

// Page returns a copy of one of the four EPROM pages.
func (img *Image) Page(i int) []byte {
	if i < 0 || i >= ImageSize/PageSize {
		return nil
	}
	return append([]byte{}, img[i*PageSize:(i+1)*PageSize]...)
}

// Dump formats the image one page per line.
func (img *Image) Dump() string {
	var sb strings.Builder
	for i := 0; i < ImageSize/PageSize; i++ {
		fmt.Fprintf(&sb, "Page %d", i)
		for _, b := range img.Page(i) {
			fmt.Fprintf(&sb, " %02x", b)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (img Image) String() string {
	return hex.EncodeToString(img[:])
}

// ImageFromBytes copies a raw dump into an Image.
func ImageFromBytes(data []byte) (Image, error) {
	var img Image
	if len(data) != ImageSize {
		return img, fmt.Errorf("image is %d bytes instead of %d bytes", len(data), ImageSize)
	}
	copy(img[:], data)
	return img, nil
}

// Resistance is the resistance class code reported to the battery manager.
type Resistance uint32

const (
	ResistanceUnknown  Resistance = 0
	ResistanceCoslight Resistance = 0x30000
	ResistanceAAC      Resistance = 0x40000
	ResistanceDelsa    Resistance = 0x50000
)

var resistanceKOhm = map[Resistance]int{
	0x30000: 12,
	0x40000: 17,
	0x50000: 22,
	0x60000: 28,
}

// KOhm returns the nominal battery id resistor value, or 0 when the code is
// not a known bucket.
func (r Resistance) KOhm() int {
	return resistanceKOhm[r]
}

func (r Resistance) String() string {
	if k := r.KOhm(); k != 0 {
		return fmt.Sprintf("0x%x (%dkOhm)", uint32(r), k)
	}
	return fmt.Sprintf("0x%x", uint32(r))
}

// Class is the battery pack vendor.
type Class int

const (
	ClassUnknown Class = iota
	ClassCoslight
	ClassAAC
	ClassDelsa
)

var classNames = map[Class]string{
	ClassUnknown:  "Unknown",
	ClassCoslight: "Coslight",
	ClassAAC:      "AAC",
	ClassDelsa:    "Delsa",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Resistance returns the class code for the vendor.
func (c Class) Resistance() Resistance {
	switch c {
	case ClassCoslight:
		return ResistanceCoslight
	case ClassAAC:
		return ResistanceAAC
	case ClassDelsa:
		return ResistanceDelsa
	default:
		return ResistanceUnknown
	}
}

// MarshalText lets the class appear by name in JSON documents.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(text []byte) error {
	for k, v := range classNames {
		if v == string(text) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown battery class %q", text)
}

// Identity is everything that can be derived from one image.
type Identity struct {
	Header    uint32
	PseudoID  uint32
	Authentic bool
	Class     Class
}

// Resistance is a shortcut for Class.Resistance.
func (id Identity) Resistance() Resistance {
	return id.Class.Resistance()
}

func (id Identity) String() string {
	if !id.Authentic {
		return fmt.Sprintf("Header=0x%08x (not authentic)", id.Header)
	}
	return fmt.Sprintf("PseudoID=0x%08x Class=%s Resistance=%s", id.PseudoID, id.Class, id.Resistance())
}

// Decode extracts the identity from an image. A header mismatch is a normal
// outcome: the field is uninitialised or the chip belongs to another family.
func Decode(img Image) Identity {
	id := Identity{
		Header:   img.Header(),
		PseudoID: img.PseudoID(),
	}

	if id.Header != headerMagic {
		return id
	}
	id.Authentic = true

	switch id.PseudoID {
	case PseudoIDCoslight:
		id.Class = ClassCoslight
	case PseudoIDAAC:
		id.Class = ClassAAC
	case PseudoIDDelsa:
		id.Class = ClassDelsa
	}

	return id
}

// Classify returns the vendor class of an image, ClassUnknown when the image
// is not authentic or the fingerprint is not known.
func Classify(img Image) Class {
	return Decode(img).Class
}
