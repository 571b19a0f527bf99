// Package opal decodes Sydney Opal DESFire cards.
//
// Opal keeps its state in a single 16-byte file that is readable without
// keys. The file is little-endian as a whole: it is reversed and then read
// as a big-endian bit string.
package opal

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

const Name = "Opal"

const (
	appID      = 0x314553
	fileID     = 0x07
	recordSize = 16
	serialBase = 3085220000000000
)

// Transaction actions.
const (
	ActionNone = iota
	ActionNewJourney
	ActionTransferSameMode
	ActionTransferDifferentMode
	ActionManlyNewJourney
	ActionManlyTransferSameMode
	ActionManlyTransferDifferentMode
	ActionJourneyCompletedDistance
	ActionJourneyCompletedFlatRate
	ActionAutoTopUpOn
	ActionAutoTopUpOff
	ActionTapOnReversal
	ActionTapOnRejected
)

var actionNames = map[int]string{
	ActionNone:                       "No action",
	ActionNewJourney:                 "New journey",
	ActionTransferSameMode:           "Transfer, same mode",
	ActionTransferDifferentMode:      "Transfer, different mode",
	ActionManlyNewJourney:            "Manly ferry, new journey",
	ActionManlyTransferSameMode:      "Manly ferry, transfer same mode",
	ActionManlyTransferDifferentMode: "Manly ferry, transfer different mode",
	ActionJourneyCompletedDistance:   "Journey completed (distance fare)",
	ActionJourneyCompletedFlatRate:   "Journey completed (flat rate)",
	ActionAutoTopUpOn:                "Auto top-up on",
	ActionAutoTopUpOff:               "Auto top-up off",
	ActionTapOnReversal:              "Tap on reversal",
	ActionTapOnRejected:              "Tap on rejected",
}

var vehicleModes = map[int]transit.Mode{
	0: transit.ModeTrain,
	1: transit.ModeFerry,
	2: transit.ModeBus,
}

var sydney = mustLoadLocation("Australia/Sydney")

var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, sydney)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Record is the decoded state file.
type Record struct {
	Checksum          int
	WeeklyTrips       int
	AutoTopUp         bool
	Action            int
	Vehicle           int
	Minute            int
	Day               int
	Balance           int64
	TransactionNumber int
	LastDigit         int
	SerialNumber      uint32
}

// LastTransaction returns the local time of the last transaction. Day and
// minute count from 1980-01-01 in Sydney, so the offset follows DST.
func (r Record) LastTransaction() time.Time {
	return time.Date(epoch.Year(), epoch.Month(), epoch.Day()+r.Day, 0, r.Minute, 0, 0, sydney)
}

func (r Record) Serial() string {
	return formatSerial(r.SerialNumber, r.LastDigit)
}

// ParseRecord decodes the first 16 bytes of the state file.
func ParseRecord(data []byte) (Record, error) {
	if len(data) < recordSize {
		return Record{}, fmt.Errorf("opal: state file has %d bytes", len(data))
	}
	d := transit.Reverse(data[:recordSize])
	bits := func(start, length int) int { return int(transit.GetBits(d, start, length)) }
	return Record{
		Checksum:          bits(0, 16),
		WeeklyTrips:       bits(16, 4),
		AutoTopUp:         bits(20, 1) == 1,
		Action:            bits(21, 4),
		Vehicle:           bits(25, 3),
		Minute:            bits(28, 11),
		Day:               bits(39, 15),
		Balance:           transit.SignExtend(transit.GetBits(d, 54, 21), 21),
		TransactionNumber: bits(75, 16),
		LastDigit:         bits(92, 4),
		SerialNumber:      uint32(transit.GetBits(d, 96, 32)),
	}, nil
}

func formatSerial(serial uint32, lastDigit int) string {
	n := serialBase + int64(serial)*10 + int64(lastDigit)
	return transit.GroupDigits(fmt.Sprint(n), 4, 4, 4, 4)
}

type Factory struct{}

func (Factory) CardType() card.CardType { return card.TypeDesfire }

func (Factory) Check(c card.Card) bool {
	dc, ok := c.(*card.DesfireCard)
	return ok && dc.Application(appID) != nil
}

// Identify only needs the first 5 bytes of the state file.
func (Factory) Identify(c card.Card) (*transit.Identity, error) {
	data, err := stateFile(c, 5)
	if err != nil {
		return nil, err
	}
	d := append(transit.Reverse(data[:5]), data[5:]...)
	lastDigit := int(transit.GetBits(d, 4, 4))
	serial := uint32(transit.GetBits(d, 8, 32))
	return &transit.Identity{Name: Name, Serial: formatSerial(serial, lastDigit)}, nil
}

func (Factory) Parse(c card.Card) (*transit.Report, error) {
	data, err := stateFile(c, recordSize)
	if err != nil {
		return nil, err
	}
	r, err := ParseRecord(data)
	if err != nil {
		return nil, err
	}

	report := &transit.Report{
		CardName: Name,
		Serial:   r.Serial(),
		Balance:  transit.NewMoney(transit.AUD, r.Balance),
	}
	mode, ok := vehicleModes[r.Vehicle]
	if !ok {
		mode = transit.ModeUnknown
	}
	report.Trips = []transit.Trip{{
		Start:  r.LastTransaction(),
		Mode:   mode,
		Route:  actionName(r.Action),
		Agency: Name,
	}}
	report.AddInfo("Weekly trips", r.WeeklyTrips)
	report.AddInfo("Auto top-up", r.AutoTopUp)
	report.AddInfo("Last transaction", actionName(r.Action))
	report.AddInfo("Transaction number", r.TransactionNumber)
	report.AddInfo("Checksum", fmt.Sprintf("%04X", r.Checksum))
	return report, nil
}

func stateFile(c card.Card, minLen int) ([]byte, error) {
	dc, ok := c.(*card.DesfireCard)
	if !ok {
		return nil, fmt.Errorf("opal: unexpected card %T", c)
	}
	data := dc.Application(appID).FileData(fileID)
	if len(data) < minLen {
		return nil, fmt.Errorf("opal: state file has %d bytes", len(data))
	}
	return data, nil
}

func actionName(action int) string {
	if name, ok := actionNames[action]; ok {
		return name
	}
	return fmt.Sprintf("Unknown action %d", action)
}
