// Package ezlink decodes Singapore CEPAS cards (EZ-Link, NETS FlashPay).
package ezlink

import (
	"fmt"
	"strings"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
	"github.com/nedpals/davi-transit/transit"
)

// The transit purse and its history.
const purseID = 3

// Issuer names by the first three digits of the CAN.
const (
	IssuerEZLink = "EZ-Link"
	IssuerNETS   = "NETS"
	IssuerCEPAS  = "CEPAS"
)

type Factory struct{}

func (Factory) CardType() card.CardType { return card.TypeCEPAS }

func (Factory) Check(c card.Card) bool {
	cc, ok := c.(*card.CEPASCard)
	return ok && cc.Purse(purseID).Valid() && cc.History(purseID).Valid()
}

func (Factory) Identify(c card.Card) (*transit.Identity, error) {
	purse, err := transitPurse(c)
	if err != nil {
		return nil, err
	}
	can := nfc.BytesToHex(purse.CAN)
	return &transit.Identity{Name: issuerName(can), Serial: can}, nil
}

func (Factory) Parse(c card.Card) (*transit.Report, error) {
	purse, err := transitPurse(c)
	if err != nil {
		return nil, err
	}
	can := nfc.BytesToHex(purse.CAN)
	name := issuerName(can)

	report := &transit.Report{
		CardName: name,
		Serial:   can,
		Balance:  transit.NewMoney(transit.SGD, int64(purse.Balance)),
	}
	for _, txn := range c.(*card.CEPASCard).History(purseID).Transactions {
		if txn.Amount > 0 {
			report.Refills = append(report.Refills, transit.Refill{
				Time:   txn.Time,
				Amount: transit.Money{Amount: int64(txn.Amount), Currency: transit.SGD},
				Agency: agencyName(txn.Type, name),
			})
			continue
		}
		report.Trips = append(report.Trips, newTrip(txn, name))
	}
	transit.SortTrips(report.Trips)
	transit.SortRefills(report.Refills)

	report.AddInfo("CSN", nfc.BytesToHex(purse.CSN))
	report.AddInfo("Issued", purse.CreationDate.Format("2006-01-02"))
	report.AddInfo("Expires", purse.ExpiryDate.Format("2006-01-02"))
	if purse.AutoLoadAmount != 0 {
		report.AddInfo("Auto-load amount", transit.Money{Amount: int64(purse.AutoLoadAmount), Currency: transit.SGD})
	}
	return report, nil
}

func transitPurse(c card.Card) (*card.CEPASPurse, error) {
	cc, ok := c.(*card.CEPASCard)
	if !ok {
		return nil, fmt.Errorf("ezlink: unexpected card %T", c)
	}
	purse := cc.Purse(purseID)
	if !purse.Valid() {
		return nil, fmt.Errorf("ezlink: purse %d unreadable", purseID)
	}
	return purse, nil
}

func issuerName(can string) string {
	switch {
	case strings.HasPrefix(can, "100"):
		return IssuerEZLink
	case strings.HasPrefix(can, "111"):
		return IssuerNETS
	default:
		return IssuerCEPAS
	}
}

func newTrip(txn card.CEPASTransaction, cardName string) transit.Trip {
	trip := transit.Trip{
		Start:  txn.Time,
		Mode:   tripMode(txn.Type),
		Agency: agencyName(txn.Type, cardName),
	}
	if txn.Type != card.CEPASCreation && txn.Type != card.CEPASCreationF0 {
		trip.Fare = transit.NewMoney(transit.SGD, -int64(txn.Amount))
	}
	trip.Route, trip.StartStation, trip.EndStation = parseUserData(txn.UserData, txn.Type)
	return trip
}

func tripMode(t card.CEPASTransactionType) transit.Mode {
	switch t {
	case card.CEPASBus, card.CEPASBusRefund:
		return transit.ModeBus
	case card.CEPASMRT:
		return transit.ModeMetro
	case card.CEPASTopUp, card.CEPASTopUpAlt:
		return transit.ModeTicketMachine
	case card.CEPASRetail, card.CEPASService:
		return transit.ModePOS
	default:
		return transit.ModeOther
	}
}

func agencyName(t card.CEPASTransactionType, cardName string) string {
	switch t {
	case card.CEPASBus, card.CEPASBusRefund:
		return "BUS"
	case card.CEPASCreation, card.CEPASCreationF0, card.CEPASTopUp, card.CEPASTopUpAlt, card.CEPASService:
		return cardName
	case card.CEPASRetail:
		return "POS"
	default:
		return "SMRT"
	}
}

// parseUserData splits the 8-character user data field into a route and
// station codes. Bus records carry "SVC" or "BUS" and a service number. Rail
// records carry two station codes such as "BGS-DBG".
func parseUserData(ud string, t card.CEPASTransactionType) (route, start, end string) {
	trimmed := strings.TrimSpace(ud)
	isBus := t == card.CEPASBus || t == card.CEPASBusRefund
	if isBus && len(ud) >= 7 && (strings.HasPrefix(ud, "SVC") || strings.HasPrefix(ud, "BUS")) {
		if t == card.CEPASBusRefund {
			return "Bus refund", "", ""
		}
		return "Bus #" + strings.ReplaceAll(ud[3:7], " ", ""), "", ""
	}
	switch t {
	case card.CEPASCreation, card.CEPASCreationF0:
		return "First use", trimmed, ""
	case card.CEPASRetail:
		return "Retail purchase", trimmed, ""
	case card.CEPASBus:
		route = "Unknown format: " + ud
	case card.CEPASBusRefund:
		route = "Bus refund"
	case card.CEPASMRT:
		route = "MRT"
	case card.CEPASTopUp, card.CEPASTopUpAlt:
		route = "Top-up"
	case card.CEPASService:
		route = "Service charge"
	default:
		route = "Unknown (" + t.String() + ")"
	}
	if len(ud) > 6 && (ud[3] == '-' || ud[3] == ' ') {
		return route, ud[0:3], ud[4:7]
	}
	return route, trimmed, ""
}
