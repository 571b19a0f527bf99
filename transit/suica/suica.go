// Package suica decodes Japanese transit IC cards that share the Suica
// history format (Suica, PASMO, ICOCA and the rest of the mutual-use group).
package suica

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

const Name = "Suica"

const (
	SystemCode     = 0x0003
	ServiceHistory = 0x090F
	blockLen       = 16
)

const (
	consoleBus     = 0x05
	consolePOS     = 0xC7
	consoleVending = 0xC8
	processCharge  = 0x02
)

var ticketMachines = map[byte]bool{0x03: true, 0x07: true, 0x08: true, 0x12: true, 0x13: true, 0x14: true, 0x15: true}

var consoleNames = map[byte]string{
	0x03: "Fare adjustment machine",
	0x04: "Portable terminal",
	0x05: "Bus terminal",
	0x07: "Ticket machine",
	0x08: "Ticket machine",
	0x09: "Quick charge machine",
	0x12: "Ticket machine (Tokyo Monorail)",
	0x13: "Ticket machine",
	0x14: "Ticket machine",
	0x15: "Ticket machine",
	0x16: "Ticket gate",
	0x17: "Ticket validator",
	0x18: "Ticket booth",
	0x19: "Ticket office",
	0x1A: "Gate terminal",
	0x1B: "Mobile phone",
	0xC7: "Point of sale",
	0xC8: "Vending machine",
}

var processNames = map[byte]string{
	0x01: "Fare",
	0x02: "Charge",
	0x03: "Ticket purchase",
	0x04: "Fare adjustment",
	0x07: "New issue",
	0x0D: "Bus",
	0x0F: "Bus",
	0x11: "Reissue",
	0x14: "Entry with auto-charge",
	0x15: "Exit with auto-charge",
	0x1F: "Bus charge",
	0x46: "Purchase",
	0x48: "Bonus charge",
	0x4A: "Purchase cancelled",
	0xC6: "Purchase (cash)",
}

var jst = time.FixedZone("JST", 9*3600)

type Factory struct{}

func (Factory) CardType() card.CardType { return card.TypeFelica }

func (Factory) Check(c card.Card) bool {
	fc, ok := c.(*card.FelicaCard)
	return ok && fc.System(SystemCode) != nil
}

// Identify reports no serial: the IDm is the only identifier and is not
// printed on the card.
func (Factory) Identify(c card.Card) (*transit.Identity, error) {
	if _, ok := c.(*card.FelicaCard); !ok {
		return nil, fmt.Errorf("suica: unexpected card %T", c)
	}
	return &transit.Identity{Name: Name}, nil
}

func (Factory) Parse(c card.Card) (*transit.Report, error) {
	fc, ok := c.(*card.FelicaCard)
	if !ok {
		return nil, fmt.Errorf("suica: unexpected card %T", c)
	}
	report := &transit.Report{CardName: Name}

	history := fc.System(SystemCode).Service(ServiceHistory)
	if history == nil {
		return report, nil
	}
	var blocks [][]byte
	for _, b := range history.Blocks {
		if len(b.Data) >= blockLen {
			blocks = append(blocks, b.Data)
		}
	}

	// Blocks are stored newest first; the fare is the difference from the
	// next (older) block's balance.
	for i, data := range blocks {
		previous := -1
		if i+1 < len(blocks) {
			previous = balanceOf(blocks[i+1])
		}
		r, ok := parseRecord(data, previous)
		if !ok {
			continue
		}
		if report.Balance == nil {
			report.Balance = r.trip.BalanceAfter
		}
		if r.process == processCharge {
			report.Refills = append(report.Refills, transit.Refill{
				Time:   r.trip.Start,
				Amount: transit.Money{Amount: -r.trip.Fare.Amount, Currency: transit.JPY},
			})
			continue
		}
		if r.unknownStations {
			report.HasUnknownStations = true
		}
		report.Trips = append(report.Trips, r.trip)
	}
	transit.SortTrips(report.Trips)
	transit.SortRefills(report.Refills)
	return report, nil
}

type record struct {
	process         byte
	trip            transit.Trip
	unknownStations bool
}

func balanceOf(data []byte) int {
	return int(binary.LittleEndian.Uint16(data[10:12]))
}

// parseRecord decodes one history block. It returns false for an unused
// block, whose date is zero.
func parseRecord(data []byte, previousBalance int) (record, bool) {
	console, process := data[0], data[1]
	date, ok := extractDate(data)
	if !ok {
		return record{}, false
	}
	balance := balanceOf(data)
	fare := 0
	if previousBalance >= 0 {
		fare = previousBalance - balance
	}

	r := record{
		process: process,
		trip: transit.Trip{
			Start:        date,
			Mode:         consoleMode(console, process),
			Fare:         transit.NewMoney(transit.JPY, int64(fare)),
			BalanceAfter: transit.NewMoney(transit.JPY, int64(balance)),
		},
	}

	region := data[15]
	switch {
	case console == consolePOS || console == consoleVending || process == processCharge:
		// No station.
	case console == consoleBus:
		line := binary.BigEndian.Uint16(data[6:8])
		stop := binary.BigEndian.Uint16(data[8:10])
		if id := (line&0xFF)<<8 | stop&0xFF; id != 0 {
			r.trip.StartStation = fmt.Sprintf("%02X/%02X/%02X", region, line&0xFF, stop&0xFF)
		}
	case ticketMachines[console]:
		r.trip.StartStation = railStation(region, data[6], data[7])
	default:
		r.trip.StartStation = railStation(region, data[6], data[7])
		r.trip.EndStation = railStation(region, data[8], data[9])
	}
	r.unknownStations = r.trip.StartStation != "" || r.trip.EndStation != ""

	if r.trip.StartStation == "" {
		r.trip.Route = consoleName(console) + " " + processName(process)
	}
	return r, true
}

// extractDate unpacks the big-endian date at bytes 4..5: 7-bit year since
// 2000, 4-bit month, 5-bit day. Point of sale records add hour and minute at
// bytes 6..7.
func extractDate(data []byte) (time.Time, bool) {
	v := binary.BigEndian.Uint16(data[4:6])
	if v == 0 {
		return time.Time{}, false
	}
	year := 2000 + int(v>>9)
	month := time.Month(v >> 5 & 0x0F)
	day := int(v & 0x1F)
	hour, minute := 0, 0
	if data[0] == consolePOS || data[0] == consoleVending {
		t := binary.BigEndian.Uint16(data[6:8])
		hour = int(t >> 11)
		minute = int(t >> 5 & 0x3F)
	}
	return time.Date(year, month, day, hour, minute, 0, 0, jst), true
}

func consoleMode(console, process byte) transit.Mode {
	switch {
	case ticketMachines[console], process == processCharge:
		return transit.ModeTicketMachine
	case console == consoleVending:
		return transit.ModeVendingMachine
	case console == consolePOS:
		return transit.ModePOS
	case console == consoleBus:
		return transit.ModeBus
	default:
		return transit.ModeMetro
	}
}

// railStation names a station by region, line and station code. Station
// names are not bundled, so the code itself is the name.
func railStation(region, line, station byte) string {
	return fmt.Sprintf("%02X/%02X/%02X", region, line, station)
}

func consoleName(b byte) string {
	if name, ok := consoleNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Console %02X", b)
}

func processName(b byte) string {
	if name, ok := processNames[b]; ok {
		return name
	}
	return fmt.Sprintf("process %02X", b)
}
