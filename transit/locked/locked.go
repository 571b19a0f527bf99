// Package locked identifies cards that could not be read at all. Its
// factories accept anything whose every region is unauthorized, so they must
// be registered after every operator factory for the same card type.
package locked

import (
	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

const Name = "Locked Card"

// ClassicFactory matches MIFARE Classic cards with no readable sector.
type ClassicFactory struct{}

func (ClassicFactory) CardType() card.CardType { return card.TypeClassic }

func (ClassicFactory) Check(c card.Card) bool {
	cc, ok := c.(*card.ClassicCard)
	return ok && cc.AllUnauthorized()
}

func (ClassicFactory) Identify(card.Card) (*transit.Identity, error) {
	return &transit.Identity{Name: Name}, nil
}

func (ClassicFactory) Parse(c card.Card) (*transit.Report, error) {
	r := &transit.Report{CardName: Name}
	r.AddInfo("Locked sectors", len(c.(*card.ClassicCard).Sectors))
	return r, nil
}

// DesfireFactory matches DESFire cards whose every file is unauthorized.
type DesfireFactory struct{}

func (DesfireFactory) CardType() card.CardType { return card.TypeDesfire }

func (DesfireFactory) Check(c card.Card) bool {
	dc, ok := c.(*card.DesfireCard)
	return ok && dc.AllUnauthorized()
}

func (DesfireFactory) Identify(card.Card) (*transit.Identity, error) {
	return &transit.Identity{Name: Name}, nil
}

func (DesfireFactory) Parse(c card.Card) (*transit.Report, error) {
	dc := c.(*card.DesfireCard)
	files := 0
	for _, app := range dc.Applications {
		files += len(app.Files)
	}
	r := &transit.Report{CardName: Name}
	r.AddInfo("Applications", len(dc.Applications))
	r.AddInfo("Locked files", files)
	return r, nil
}
