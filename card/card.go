package card

import "time"

// Card is the typed form of a RawCard. It has the same variants:
// *ClassicCard, *UltralightCard, *DesfireCard, *CEPASCard and *FelicaCard.
type Card interface {
	CardType() CardType
	TagID() []byte
	ScannedAt() time.Time
	isCard()
}

func (*ClassicCard) CardType() CardType    { return TypeClassic }
func (*UltralightCard) CardType() CardType { return TypeUltralight }
func (*DesfireCard) CardType() CardType    { return TypeDesfire }
func (*CEPASCard) CardType() CardType      { return TypeCEPAS }
func (*FelicaCard) CardType() CardType     { return TypeFelica }

func (*ClassicCard) isCard()    {}
func (*UltralightCard) isCard() {}
func (*DesfireCard) isCard()    {}
func (*CEPASCard) isCard()      {}
func (*FelicaCard) isCard()     {}

// UltralightCard is a parsed paged memory card.
type UltralightCard struct {
	Header
	Pages []UltralightPage
	// Error is the card-level read failure, if any.
	Error string
}

type UltralightPage struct {
	Index int
	Data  []byte
}

// Page returns the data of page i, or nil.
func (c *UltralightCard) Page(i int) []byte {
	for _, p := range c.Pages {
		if p.Index == i {
			return p.Data
		}
	}
	return nil
}

// FelicaCard is a parsed FeliCa card.
type FelicaCard struct {
	Header
	PMm     []byte
	Systems []FelicaSystem
}

type FelicaSystem struct {
	Code     uint16
	Services []FelicaService
}

type FelicaService struct {
	Code   uint16
	Blocks []FelicaBlock
}

type FelicaBlock struct {
	Address int
	Data    []byte
}

// System returns the system with the given code, or nil.
func (c *FelicaCard) System(code uint16) *FelicaSystem {
	for i := range c.Systems {
		if c.Systems[i].Code == code {
			return &c.Systems[i]
		}
	}
	return nil
}

// Service returns the service with the given code, or nil.
func (s *FelicaSystem) Service(code uint16) *FelicaService {
	if s == nil {
		return nil
	}
	for i := range s.Services {
		if s.Services[i].Code == code {
			return &s.Services[i]
		}
	}
	return nil
}
