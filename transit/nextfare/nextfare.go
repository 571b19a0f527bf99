// Package nextfare decodes Cubic Nextfare MIFARE Classic cards.
package nextfare

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

const Name = "Nextfare"

var manufacturer = []byte{0x16, 0x18, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E, 0x1F}

// Record types, taken from the first byte of a block.
const (
	recordBalance = 0x01
	recordTopUp   = 0x02
	recordTap     = 0x31
)

// Version numbers wrap at 255; a pair straddling the wrap is swapped.
const (
	versionWrapHigh = 240
	versionWrapLow  = 10
)

// Factory recognizes Nextfare cards. Timestamps are read as UTC.
type Factory struct{}

func (Factory) CardType() card.CardType { return card.TypeClassic }

func (Factory) Check(c card.Card) bool {
	cc, ok := c.(*card.ClassicCard)
	if !ok {
		return false
	}
	block := cc.BlockData(0, 1)
	if len(block) < len(manufacturer)+1 {
		return false
	}
	return bytes.Equal(block[1:len(manufacturer)+1], manufacturer)
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
	cc := c.(*card.ClassicCard)

	var (
		balances []balanceRecord
		taps     []tapRecord
		refills  []transit.Refill
	)
	for _, s := range cc.Sectors {
		sector, ok := s.(*card.DataClassicSector)
		if !ok || sector.Index == 0 {
			continue
		}
		for i := 0; i < 3; i++ {
			block := sector.Block(i)
			if block == nil || len(block.Data) < card.ClassicBlockSize {
				continue
			}
			switch data := block.Data; data[0] {
			case recordBalance:
				balances = append(balances, parseBalance(data))
			case recordTopUp:
				refills = append(refills, parseTopUp(data))
			case recordTap:
				taps = append(taps, parseTap(data))
			}
		}
	}

	report := &transit.Report{
		CardName: Name,
		Serial:   serial,
		Balance:  transit.NewMoney(transit.XXX, currentBalance(balances)),
		Trips:    mergeTaps(taps),
		Refills:  refills,
	}
	transit.SortTrips(report.Trips)
	transit.SortRefills(report.Refills)
	for _, t := range report.Trips {
		if t.StartStation == "" || (!t.End.IsZero() && t.EndStation == "") {
			report.HasUnknownStations = true
		}
	}
	if block := cc.BlockData(0, 1); len(block) >= 15 {
		report.AddInfo("System code", fmt.Sprintf("%X", block[9:15]))
	}
	return report, nil
}

func serialNumber(c card.Card) (string, error) {
	cc, ok := c.(*card.ClassicCard)
	if !ok {
		return "", fmt.Errorf("nextfare: unexpected card %T", c)
	}
	block := cc.BlockData(0, 0)
	if len(block) < 4 {
		return "", fmt.Errorf("nextfare: sector 0 block 0 unreadable")
	}
	return formatSerial(binary.LittleEndian.Uint32(block)), nil
}

// formatSerial renders "0160 dddd dddd dddL" where L is the Luhn digit.
func formatSerial(n uint32) string {
	digits := fmt.Sprintf("0160%011d", n)
	digits += fmt.Sprint(transit.LuhnDigit(digits))
	return transit.GroupDigits(digits, 4, 4, 4, 4)
}

type balanceRecord struct {
	balance int64
	version int
}

type tapRecord struct {
	time         time.Time
	mode         int
	journey      int
	continuation bool
	value        int64
	station      int
}

func parseBalance(data []byte) balanceRecord {
	return balanceRecord{
		balance: int64(int16(binary.LittleEndian.Uint16(data[2:]))),
		version: int(data[13]),
	}
}

func parseTopUp(data []byte) transit.Refill {
	return transit.Refill{
		Time:   unpackTime(data[2:]),
		Amount: transit.Money{Amount: int64(binary.LittleEndian.Uint16(data[6:])), Currency: transit.XXX},
		Agency: Name,
	}
}

func parseTap(data []byte) tapRecord {
	journey := binary.LittleEndian.Uint16(data[6:])
	return tapRecord{
		time:         unpackTime(data[2:]),
		mode:         int(data[1]),
		journey:      int(journey >> 5),
		continuation: journey&0x10 != 0,
		value:        int64(int16(binary.LittleEndian.Uint16(data[8:]))),
		station:      int(binary.LittleEndian.Uint16(data[12:])),
	}
}

// unpackTime decodes the packed little-endian timestamp: day in bits 0..4,
// month in 5..8, years since 2000 in 9..15, minute of day in 16..26.
func unpackTime(b []byte) time.Time {
	v := binary.LittleEndian.Uint32(b)
	day := int(v & 0x1F)
	month := time.Month(v >> 5 & 0x0F)
	year := 2000 + int(v>>9&0x7F)
	minute := int(v >> 16 & 0x7FF)
	return time.Date(year, month, day, 0, minute, 0, 0, time.UTC)
}

// currentBalance picks the balance record with the highest version.
func currentBalance(records []balanceRecord) int64 {
	if len(records) == 0 {
		return 0
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].version > records[j].version })
	best := records[0]
	if len(records) == 2 && records[0].version >= versionWrapHigh && records[1].version <= versionWrapLow {
		best = records[1]
	}
	return best.balance
}

// mergeTaps pairs each tap with the next one when both belong to the same
// journey and mode, producing one trip per pair.
func mergeTaps(taps []tapRecord) []transit.Trip {
	sort.SliceStable(taps, func(i, j int) bool { return taps[i].time.Before(taps[j].time) })

	var trips []transit.Trip
	for i := 0; i < len(taps); i++ {
		on := taps[i]
		trip := transit.Trip{
			Start:        on.time,
			Mode:         transit.ModeOther,
			StartStation: stationName(on.station),
			Route:        fmt.Sprintf("Journey %d", on.journey),
			Agency:       Name,
		}
		cost := -on.value
		if on.continuation {
			trip.Route += " (transfer)"
		}
		if i+1 < len(taps) && taps[i+1].journey == on.journey && taps[i+1].mode == on.mode {
			off := taps[i+1]
			trip.End = off.time
			trip.EndStation = stationName(off.station)
			cost -= off.value
			i++
		}
		trip.Fare = transit.NewMoney(transit.XXX, cost)
		trips = append(trips, trip)
	}
	return trips
}

func stationName(id int) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("Station %d", id)
}
