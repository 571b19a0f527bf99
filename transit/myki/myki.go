// Package myki identifies Melbourne myki DESFire cards. Only the serial
// number is readable without keys.
package myki

import (
	"fmt"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

const Name = "Myki"

const (
	appIDPrimary  = 0x11F2
	appIDSerial   = 0xF010F2
	serialFileID  = 0x0F
	serialFileLen = 16
)

type Factory struct{}

func (Factory) CardType() card.CardType { return card.TypeDesfire }

func (Factory) Check(c card.Card) bool {
	dc, ok := c.(*card.DesfireCard)
	if !ok {
		return false
	}
	return dc.Application(appIDPrimary) != nil && dc.Application(appIDSerial) != nil
}

func (Factory) Identify(c card.Card) (*transit.Identity, error) {
	serial, err := serialNumber(c)
	if err != nil {
		return nil, err
	}
	return &transit.Identity{Name: Name, Serial: serial}, nil
}

// Parse reports the serial only. The balance is stored in a locked file.
func (Factory) Parse(c card.Card) (*transit.Report, error) {
	serial, err := serialNumber(c)
	if err != nil {
		return nil, err
	}
	return &transit.Report{CardName: Name, Serial: serial}, nil
}

func serialNumber(c card.Card) (string, error) {
	dc, ok := c.(*card.DesfireCard)
	if !ok {
		return "", fmt.Errorf("myki: unexpected card %T", c)
	}
	data := dc.Application(appIDSerial).FileData(serialFileID)
	if len(data) < serialFileLen {
		return "", fmt.Errorf("myki: serial file has %d bytes", len(data))
	}
	data = transit.Reverse(data)
	serial1 := transit.GetBits(data, 96, 32)
	serial2 := transit.GetBits(data, 64, 32)
	return formatSerial(serial1, serial2), nil
}

func formatSerial(serial1, serial2 uint64) string {
	digits := fmt.Sprintf("%06d%08d", serial1, serial2)
	return digits + fmt.Sprint(transit.LuhnDigit(digits))
}
