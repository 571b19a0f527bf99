// Package transit turns parsed cards into operator-level reports.
//
// A Factory recognizes one operator's cards and decodes them. A Registry
// holds factories in priority order and picks the first one that claims a
// card:
//
//	reg := transit.NewRegistry(nextfare.Factory{}, locked.ClassicFactory{})
//	id, err := reg.Identify(parsed)
//	if id == nil {
//		// unidentified card
//	}
package transit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Identity is the cheap summary of a card: operator name and serial.
type Identity struct {
	Name   string `json:"name"`
	Serial string `json:"serial,omitempty"`
}

func (i Identity) String() string {
	if i.Serial == "" {
		return i.Name
	}
	return i.Name + " " + i.Serial
}

// Report is the full decode of a card.
type Report struct {
	CardName           string         `json:"cardName"`
	Serial             string         `json:"serial,omitempty"`
	Balance            *Money         `json:"balance,omitempty"`
	Trips              []Trip         `json:"trips,omitempty"`
	Refills            []Refill       `json:"refills,omitempty"`
	Subscriptions      []Subscription `json:"subscriptions,omitempty"`
	Info               []InfoItem     `json:"info,omitempty"`
	HasUnknownStations bool           `json:"hasUnknownStations,omitempty"`
}

// AddInfo appends a label/value pair to the report.
func (r *Report) AddInfo(label string, value any) {
	r.Info = append(r.Info, InfoItem{Label: label, Value: fmt.Sprint(value)})
}

type InfoItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Money is an amount in the currency's minor unit.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ISO 4217 codes used by the decoders. XXX marks an unknown currency.
const (
	AUD = "AUD"
	JPY = "JPY"
	SGD = "SGD"
	XXX = "XXX"
)

// Currencies without a minor unit. Everything else has two decimals.
var wholeUnitCurrencies = map[string]bool{JPY: true}

// NewMoney returns a *Money for use in optional report fields.
func NewMoney(currency string, amount int64) *Money {
	return &Money{Amount: amount, Currency: currency}
}

// String formats m as "AUD 3.36", "JPY 1200" or "SGD -2.00".
func (m Money) String() string {
	if wholeUnitCurrencies[m.Currency] {
		return fmt.Sprintf("%s %d", m.Currency, m.Amount)
	}
	sign := ""
	v := m.Amount
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s %s%d.%02d", m.Currency, sign, v/100, v%100)
}

// Mode is the kind of vehicle or terminal a trip was recorded on.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeBus
	ModeTrain
	ModeTram
	ModeMetro
	ModeFerry
	ModeTicketMachine
	ModeVendingMachine
	ModePOS
	ModeOther
)

var modeNames = [...]string{
	ModeUnknown:        "unknown",
	ModeBus:            "bus",
	ModeTrain:          "train",
	ModeTram:           "tram",
	ModeMetro:          "metro",
	ModeFerry:          "ferry",
	ModeTicketMachine:  "ticket_machine",
	ModeVendingMachine: "vending_machine",
	ModePOS:            "pos",
	ModeOther:          "other",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	for i, name := range modeNames {
		if name == string(text) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", text)
}

// Trip is one journey or purchase. End is zero when the card recorded no
// tap-off.
type Trip struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end,omitzero"`
	Mode         Mode      `json:"mode"`
	Fare         *Money    `json:"fare,omitempty"`
	BalanceAfter *Money    `json:"balanceAfter,omitempty"`
	Route        string    `json:"route,omitempty"`
	StartStation string    `json:"startStation,omitempty"`
	EndStation   string    `json:"endStation,omitempty"`
	Agency       string    `json:"agency,omitempty"`
}

// Description is a one-line summary for terminal output.
func (t Trip) Description() string {
	var b strings.Builder
	b.WriteString(t.Mode.String())
	if t.Route != "" {
		b.WriteString(" " + t.Route)
	}
	if t.StartStation != "" {
		b.WriteString(" from " + t.StartStation)
	}
	if t.EndStation != "" {
		b.WriteString(" to " + t.EndStation)
	}
	return b.String()
}

type Refill struct {
	Time   time.Time `json:"time"`
	Amount Money     `json:"amount"`
	Agency string    `json:"agency,omitempty"`
}

// Subscription is a pass or period product stored on the card.
type Subscription struct {
	Name           string    `json:"name"`
	ValidFrom      time.Time `json:"validFrom,omitzero"`
	ValidTo        time.Time `json:"validTo,omitzero"`
	RemainingTrips int       `json:"remainingTrips,omitempty"`
}

// SortTrips orders trips most recent first. Trips with equal start times
// keep their relative order.
func SortTrips(trips []Trip) {
	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].Start.After(trips[j].Start)
	})
}

// SortRefills orders refills most recent first.
func SortRefills(refills []Refill) {
	sort.SliceStable(refills, func(i, j int) bool {
		return refills[i].Time.After(refills[j].Time)
	})
}
