// Package edy decodes Rakuten Edy FeliCa e-money cards.
package edy

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
	"github.com/nedpals/davi-transit/transit"
)

const Name = "Edy"

const (
	SystemCode      = 0xFE00
	ServiceID       = 0x110B
	ServiceBalance  = 0x1317
	ServiceHistory  = 0x170F
	historyBlockLen = 16
)

// History record types.
const (
	typeCharge   = 0x02
	typeGift     = 0x04
	typePurchase = 0x20
)

var jst = time.FixedZone("JST", 9*3600)

var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, jst)

type Factory struct{}

func (Factory) CardType() card.CardType { return card.TypeFelica }

func (Factory) Check(c card.Card) bool {
	fc, ok := c.(*card.FelicaCard)
	return ok && fc.System(SystemCode) != nil
}

func (Factory) Identify(c card.Card) (*transit.Identity, error) {
	serial, err := serialNumber(c)
	if err != nil {
		return nil, err
	}
	return &transit.Identity{Name: Name, Serial: serial}, nil
}

func (Factory) Parse(c card.Card) (*transit.Report, error) {
	serial, err := serialNumber(c)
	if err != nil {
		return nil, err
	}
	system := c.(*card.FelicaCard).System(SystemCode)

	report := &transit.Report{CardName: Name, Serial: serial}
	if data := blockData(system.Service(ServiceBalance), 0); len(data) >= 4 {
		report.Balance = transit.NewMoney(transit.JPY, int64(binary.LittleEndian.Uint32(data)))
	}

	if history := system.Service(ServiceHistory); history != nil {
		for _, b := range history.Blocks {
			if len(b.Data) < historyBlockLen {
				continue
			}
			r := parseRecord(b.Data)
			switch r.kind {
			case typeCharge, typeGift:
				report.Refills = append(report.Refills, transit.Refill{
					Time:   r.time,
					Amount: transit.Money{Amount: r.amount, Currency: transit.JPY},
					Agency: Name,
				})
			default:
				mode := transit.ModeOther
				if r.kind == typePurchase {
					mode = transit.ModePOS
				}
				report.Trips = append(report.Trips, transit.Trip{
					Start:        r.time,
					Mode:         mode,
					Fare:         transit.NewMoney(transit.JPY, r.amount),
					BalanceAfter: transit.NewMoney(transit.JPY, r.balance),
					Route:        fmt.Sprintf("Transaction %d", r.sequence),
					Agency:       Name,
				})
			}
		}
	}
	transit.SortTrips(report.Trips)
	transit.SortRefills(report.Refills)
	return report, nil
}

type record struct {
	kind     byte
	sequence uint32
	time     time.Time
	amount   int64
	balance  int64
}

// parseRecord decodes a history block. The timestamp packs days since
// 2000-01-01 JST into the upper 15 bits and seconds into the lower 17.
func parseRecord(data []byte) record {
	ts := binary.BigEndian.Uint32(data[4:8])
	days := int(ts >> 17)
	seconds := time.Duration(ts&0x1FFFF) * time.Second
	return record{
		kind:     data[0],
		sequence: uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]),
		time:     epoch.AddDate(0, 0, days).Add(seconds),
		amount:   int64(binary.BigEndian.Uint32(data[8:12])),
		balance:  int64(binary.BigEndian.Uint32(data[12:16])),
	}
}

func serialNumber(c card.Card) (string, error) {
	fc, ok := c.(*card.FelicaCard)
	if !ok {
		return "", fmt.Errorf("edy: unexpected card %T", c)
	}
	data := blockData(fc.System(SystemCode).Service(ServiceID), 0)
	if len(data) < 10 {
		return "", fmt.Errorf("edy: ID block unreadable")
	}
	hex := nfc.BytesToHex(data[2:10])
	groups := make([]string, 0, 4)
	for i := 0; i < len(hex); i += 4 {
		groups = append(groups, hex[i:i+4])
	}
	return strings.Join(groups, " "), nil
}

func blockData(s *card.FelicaService, addr int) []byte {
	if s == nil {
		return nil
	}
	for _, b := range s.Blocks {
		if b.Address == addr {
			return b.Data
		}
	}
	return nil
}
