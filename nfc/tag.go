package nfc

import "fmt"

// Technology identifies the physical protocol a tag speaks. It decides which
// reader in package reader can acquire it.
type Technology int

const (
	TechUnknown Technology = iota
	TechClassic
	TechUltralight
	TechDESFire
	TechISODep
	TechFelica
)

func (t Technology) String() string {
	switch t {
	case TechClassic:
		return "MIFARE Classic"
	case TechUltralight:
		return "MIFARE Ultralight"
	case TechDESFire:
		return "MIFARE DESFire"
	case TechISODep:
		return "ISO14443-4"
	case TechFelica:
		return "FeliCa"
	default:
		return fmt.Sprintf("unknown technology (%d)", int(t))
	}
}

// Tag is a tag channel: a card in the field of a reader, reachable through a
// single physical technology.
//
// Connect must be called before any technology operation and Close must be
// called on every exit path. A Tag is never shared between concurrent scans.
//
// Example:
//
//	tags, _ := device.Tags()
//	for _, tag := range tags {
//	    if classic, ok := tag.(ClassicTag); ok {
//	        _ = classic.SectorCount()
//	    }
//	}
type Tag interface {
	// ID returns the tag identifier (UID for ISO14443A, IDm for FeliCa).
	ID() []byte
	Technology() Technology
	Connect() error
	Close() error
}

// ClassicTag exposes sector authentication and block reads of a MIFARE Classic card.
type ClassicTag interface {
	Tag
	SectorCount() int
	BlockCountInSector(sector int) int
	// SectorToBlock returns the first block of sector.
	SectorToBlock(sector int) int
	// AuthenticateSector returns false with a nil error when the card rejects the
	// key. A non-nil error means the channel failed.
	AuthenticateSector(sector int, key []byte, keyB bool) (bool, error)
	// ReadBlock returns the 16 bytes of block. Some readers return a single
	// status byte when the authentication state was lost.
	ReadBlock(block int) ([]byte, error)
}

// IsoDepTag exchanges ISO 7816-4 APDUs with an ISO14443-4 card. DESFire and CEPAS
// cards are both read through it.
type IsoDepTag interface {
	Tag
	// Transceive sends a command APDU and returns the full response, status word included.
	Transceive(apdu []byte) ([]byte, error)
}

// UltralightTag reads the paged memory of a MIFARE Ultralight card.
type UltralightTag interface {
	Tag
	PageCount() int
	// ReadPages returns 16 bytes: the 4 pages starting at page.
	ReadPages(page int) ([]byte, error)
}

// FelicaTag exchanges raw FeliCa frames. Frames start at the command code; the
// leading length byte is added and stripped by the implementation.
type FelicaTag interface {
	Tag
	PMm() []byte
	Transceive(frame []byte) ([]byte, error)
}
