// Package card holds the two card models: the lossless raw capture produced by
// a reader, and the typed card produced from it by Parse.
package card

import (
	"bytes"
	"fmt"
	"time"
)

// CardType identifies the technology family of a card.
type CardType int

const (
	TypeClassic CardType = iota + 1
	TypeUltralight
	TypeDesfire
	TypeCEPAS
	TypeFelica
)

var cardTypeNames = map[CardType]string{
	TypeClassic:    "classic",
	TypeUltralight: "ultralight",
	TypeDesfire:    "desfire",
	TypeCEPAS:      "cepas",
	TypeFelica:     "felica",
}

func (t CardType) String() string {
	if name, ok := cardTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CardType(%d)", int(t))
}

// ParseCardType is the inverse of CardType.String.
func ParseCardType(s string) (CardType, error) {
	for t, name := range cardTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown card type %q", s)
}

func (t CardType) MarshalText() ([]byte, error) {
	if _, ok := cardTypeNames[t]; !ok {
		return nil, fmt.Errorf("unknown card type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *CardType) UnmarshalText(text []byte) error {
	parsed, err := ParseCardType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Outcome is the result of reading one region of a card.
type Outcome int

const (
	// OutcomeData means the region was read.
	OutcomeData Outcome = iota
	// OutcomeUnauthorized means every authentication attempt failed.
	OutcomeUnauthorized
	// OutcomeInvalid means an I/O or structural failure other than authentication.
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeData:
		return "data"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	switch o {
	case OutcomeData, OutcomeUnauthorized, OutcomeInvalid:
		return []byte(o.String()), nil
	}
	return nil, fmt.Errorf("unknown outcome %d", int(o))
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "data":
		*o = OutcomeData
	case "unauthorized":
		*o = OutcomeUnauthorized
	case "invalid":
		*o = OutcomeInvalid
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// RawCard is a snapshot of exactly what a reader got from a card. The
// variants are *RawClassicCard, *RawUltralightCard, *RawDesfireCard,
// *RawCEPASCard and *RawFelicaCard.
type RawCard interface {
	CardType() CardType
	TagID() []byte
	ScannedAt() time.Time
	isRawCard()
}

// Header carries the fields shared by every card variant.
type Header struct {
	ID      []byte    `json:"tagId"`
	Scanned time.Time `json:"scannedAt"`
}

func (h Header) TagID() []byte        { return h.ID }
func (h Header) ScannedAt() time.Time { return h.Scanned }

func (h Header) clone() Header {
	h.ID = bytes.Clone(h.ID)
	return h
}

// NewHeader stamps a tag ID with a scan time, normalized to UTC.
func NewHeader(tagID []byte, scanned time.Time) Header {
	return Header{ID: append([]byte(nil), tagID...), Scanned: scanned.UTC()}
}

// RawClassicCard is a MIFARE Classic capture, one entry per sector.
type RawClassicCard struct {
	Header
	Sectors []RawClassicSector `json:"sectors"`
}

// RawClassicSector is one sector. Blocks is set only for OutcomeData and
// Error only for OutcomeInvalid.
type RawClassicSector struct {
	Index   int               `json:"index"`
	Outcome Outcome           `json:"outcome"`
	Blocks  []RawClassicBlock `json:"blocks"`
	Error   string            `json:"error,omitempty"`
}

type RawClassicBlock struct {
	Index int    `json:"index"`
	Data  []byte `json:"data"`
}

func NewClassicDataSector(index int, blocks []RawClassicBlock) RawClassicSector {
	return RawClassicSector{Index: index, Outcome: OutcomeData, Blocks: blocks}
}

func NewClassicUnauthorizedSector(index int) RawClassicSector {
	return RawClassicSector{Index: index, Outcome: OutcomeUnauthorized}
}

func NewClassicInvalidSector(index int, msg string) RawClassicSector {
	return RawClassicSector{Index: index, Outcome: OutcomeInvalid, Error: msg}
}

// RawUltralightCard is a paged memory capture. Error is set when the read
// failed before any user page could be read.
type RawUltralightCard struct {
	Header
	Pages []RawUltralightPage `json:"pages"`
	Error string              `json:"error,omitempty"`
}

type RawUltralightPage struct {
	Index int    `json:"index"`
	Data  []byte `json:"data"`
}

// RawDesfireCard is a DESFire capture. Manufacturing is the 28-byte
// GetVersion response, nil when the card refused it.
type RawDesfireCard struct {
	Header
	Manufacturing []byte                  `json:"manufacturing"`
	AppListLocked bool                    `json:"appListLocked,omitempty"`
	Applications  []RawDesfireApplication `json:"applications"`
}

type RawDesfireApplication struct {
	ID            uint32           `json:"id"`
	DirListLocked bool             `json:"dirListLocked,omitempty"`
	Files         []RawDesfireFile `json:"files"`
}

// RawDesfireFile is one file. Settings is nil when the card refused
// GetFileSettings and the body was read blind.
type RawDesfireFile struct {
	ID       int     `json:"id"`
	Settings []byte  `json:"settings"`
	Outcome  Outcome `json:"outcome"`
	Data     []byte  `json:"data"`
	Error    string  `json:"error,omitempty"`
}

// RawCEPASCard is a CEPAS capture: 16 purse slots and the history of each
// valid purse.
type RawCEPASCard struct {
	Header
	Purses    []RawCEPASPurse   `json:"purses"`
	Histories []RawCEPASHistory `json:"histories"`
}

// RawCEPASPurse holds the purse bytes, or the reason there are none.
type RawCEPASPurse struct {
	ID      int     `json:"id"`
	Outcome Outcome `json:"outcome"`
	Data    []byte  `json:"data"`
	Error   string  `json:"error,omitempty"`
}

// Valid reports whether the purse was read.
func (p RawCEPASPurse) Valid() bool { return p.Outcome == OutcomeData }

type RawCEPASHistory struct {
	ID      int     `json:"id"`
	Outcome Outcome `json:"outcome"`
	Data    []byte  `json:"data"`
	Error   string  `json:"error,omitempty"`
}

// RawFelicaCard is a FeliCa capture. ID holds the IDm.
type RawFelicaCard struct {
	Header
	PMm     []byte            `json:"pmm"`
	Systems []RawFelicaSystem `json:"systems"`
}

type RawFelicaSystem struct {
	Code     uint16             `json:"code"`
	Services []RawFelicaService `json:"services"`
}

type RawFelicaService struct {
	Code   uint16           `json:"code"`
	Blocks []RawFelicaBlock `json:"blocks"`
}

type RawFelicaBlock struct {
	Address int    `json:"address"`
	Data    []byte `json:"data"`
}

func (*RawClassicCard) CardType() CardType    { return TypeClassic }
func (*RawUltralightCard) CardType() CardType { return TypeUltralight }
func (*RawDesfireCard) CardType() CardType    { return TypeDesfire }
func (*RawCEPASCard) CardType() CardType      { return TypeCEPAS }
func (*RawFelicaCard) CardType() CardType     { return TypeFelica }

func (*RawClassicCard) isRawCard()    {}
func (*RawUltralightCard) isRawCard() {}
func (*RawDesfireCard) isRawCard()    {}
func (*RawCEPASCard) isRawCard()      {}
func (*RawFelicaCard) isRawCard()     {}
