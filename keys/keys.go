// Package keys supplies MIFARE Classic sector keys for a card. Keys are
// provided by the user, never derived.
package keys

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyLength is the size of a MIFARE Classic key.
const KeyLength = 6

// Well-known static keys.
var (
	KeyDefault  = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	KeyZero     = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	KeyMAD      = []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	KeyNFCForum = []byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
)

// WellKnownKeys returns copies of the static keys.
func WellKnownKeys() [][]byte {
	out := make([][]byte, 0, 4)
	for _, k := range [][]byte{KeyDefault, KeyZero, KeyMAD, KeyNFCForum} {
		out = append(out, append([]byte(nil), k...))
	}
	return out
}

// SectorKey is the key pair of one sector.
type SectorKey struct {
	A []byte
	B []byte
}

// NewSectorKey validates and copies a key pair.
func NewSectorKey(a, b []byte) (SectorKey, error) {
	if len(a) != KeyLength || len(b) != KeyLength {
		return SectorKey{}, fmt.Errorf("sector key must be %d bytes, got A=%d B=%d", KeyLength, len(a), len(b))
	}
	return SectorKey{A: append([]byte(nil), a...), B: append([]byte(nil), b...)}, nil
}

// Equal reports whether both halves match.
func (k SectorKey) Equal(o SectorKey) bool {
	return bytes.Equal(k.A, o.A) && bytes.Equal(k.B, o.B)
}

// CardKeys is the ordered key set of one card. Index i is the key pair of sector i.
type CardKeys struct {
	TagID       []byte
	Description string
	Keys        []SectorKey
}

// KeyForSector returns the key pair at index sector, or nil when out of range.
func (c *CardKeys) KeyForSector(sector int) *SectorKey {
	if c == nil || sector < 0 || sector >= len(c.Keys) {
		return nil
	}
	return &c.Keys[sector]
}

// Len returns the number of key pairs.
func (c *CardKeys) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Keys)
}

// DefaultKeysForSectorCount builds a key set using KeyDefault for both halves of every sector.
func DefaultKeysForSectorCount(sectors int) *CardKeys {
	out := &CardKeys{Keys: make([]SectorKey, sectors)}
	for i := range out.Keys {
		out.Keys[i] = SectorKey{
			A: append([]byte(nil), KeyDefault...),
			B: append([]byte(nil), KeyDefault...),
		}
	}
	return out
}

// FromProxmark3 parses a Proxmark3 binary key dump: N A keys followed by N B
// keys, 6 bytes each.
func FromProxmark3(dump []byte) (*CardKeys, error) {
	if len(dump) == 0 || len(dump)%(2*KeyLength) != 0 {
		return nil, fmt.Errorf("proxmark3 key dump must be a non-empty multiple of %d bytes, got %d", 2*KeyLength, len(dump))
	}
	sectors := len(dump) / (2 * KeyLength)
	out := &CardKeys{Keys: make([]SectorKey, sectors)}
	for i := 0; i < sectors; i++ {
		a := dump[i*KeyLength : (i+1)*KeyLength]
		b := dump[(sectors+i)*KeyLength : (sectors+i+1)*KeyLength]
		out.Keys[i] = SectorKey{A: append([]byte(nil), a...), B: append([]byte(nil), b...)}
	}
	return out, nil
}

// ParseKey decodes a 12 hex digit key. Spaces and colons are ignored.
func ParseKey(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(s)
	key, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("invalid key %q: want %d bytes, got %d", s, KeyLength, len(key))
	}
	return key, nil
}

// ParseTagID decodes a hex tag identifier. Spaces and colons are ignored.
func ParseTagID(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(s)
	id, err := hex.DecodeString(clean)
	if err != nil || len(id) == 0 {
		return nil, fmt.Errorf("invalid tag id %q", s)
	}
	return id, nil
}
