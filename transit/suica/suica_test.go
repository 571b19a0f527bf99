package suica

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

func suicaCard(t *testing.T, blocks ...string) *card.FelicaCard {
	t.Helper()
	svc := card.FelicaService{Code: ServiceHistory}
	for i, h := range blocks {
		data, err := hex.DecodeString(strings.ReplaceAll(h, " ", ""))
		require.NoError(t, err)
		svc.Blocks = append(svc.Blocks, card.FelicaBlock{Address: i, Data: data})
	}
	return &card.FelicaCard{Systems: []card.FelicaSystem{{Code: SystemCode, Services: []card.FelicaService{svc}}}}
}

const (
	unusedBlock  = "00 00 0000 0000 00000000 0000 000000 00"
	gateBlock    = "16 01 0000 3065 01020304 2003 000000 00"
	chargeBlock  = "07 02 0000 3064 00000000 E803 000000 00"
	vendingBlock = "C8 46 0000 3063 7BC00000 0000 000000 00"
	busBlock     = "05 0D 0000 3062 00120034 7800 000000 01"
)

func jstDate(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.FixedZone("JST", 9*3600))
}

func TestCheck(t *testing.T) {
	assert.True(t, Factory{}.Check(suicaCard(t)))
	assert.False(t, Factory{}.Check(&card.FelicaCard{Systems: []card.FelicaSystem{{Code: 0xFE00}}}))
	assert.False(t, Factory{}.Check(&card.ClassicCard{}))
}

func TestIdentify(t *testing.T) {
	id, err := Factory{}.Identify(suicaCard(t))
	require.NoError(t, err)
	assert.Equal(t, "Suica", id.Name)
	assert.Empty(t, id.Serial)
}

func TestParse(t *testing.T) {
	report, err := Factory{}.Parse(suicaCard(t, unusedBlock, gateBlock, chargeBlock, vendingBlock, busBlock))
	require.NoError(t, err)

	require.NotNil(t, report.Balance)
	assert.Equal(t, "JPY 800", report.Balance.String())
	assert.True(t, report.HasUnknownStations)

	require.Len(t, report.Trips, 3)

	gate := report.Trips[0]
	assert.True(t, gate.Start.Equal(jstDate(2024, time.March, 5, 0, 0)))
	assert.Equal(t, transit.ModeMetro, gate.Mode)
	assert.Equal(t, int64(200), gate.Fare.Amount)
	assert.Equal(t, "00/01/02", gate.StartStation)
	assert.Equal(t, "00/03/04", gate.EndStation)
	assert.Empty(t, gate.Route)

	vending := report.Trips[1]
	assert.True(t, vending.Start.Equal(jstDate(2024, time.March, 3, 15, 30)), "got %s", vending.Start)
	assert.Equal(t, transit.ModeVendingMachine, vending.Mode)
	assert.Equal(t, int64(120), vending.Fare.Amount)
	assert.Equal(t, "Vending machine Purchase", vending.Route)
	assert.Empty(t, vending.StartStation)

	bus := report.Trips[2]
	assert.Equal(t, transit.ModeBus, bus.Mode)
	assert.Equal(t, int64(0), bus.Fare.Amount)
	assert.Equal(t, "01/12/34", bus.StartStation)
	assert.Equal(t, int64(120), bus.BalanceAfter.Amount)

	require.Len(t, report.Refills, 1)
	assert.Equal(t, int64(1000), report.Refills[0].Amount.Amount)
	assert.True(t, report.Refills[0].Time.Equal(jstDate(2024, time.March, 4, 0, 0)))
}

func TestParseWithoutHistory(t *testing.T) {
	c := &card.FelicaCard{Systems: []card.FelicaSystem{{Code: SystemCode}}}
	report, err := Factory{}.Parse(c)
	require.NoError(t, err)
	assert.Nil(t, report.Balance)
	assert.Empty(t, report.Trips)
}

func TestConsoleMode(t *testing.T) {
	tests := []struct {
		console, process byte
		want             transit.Mode
	}{
		{0x07, 0x01, transit.ModeTicketMachine},
		{0x16, 0x02, transit.ModeTicketMachine},
		{0xC8, 0x46, transit.ModeVendingMachine},
		{0xC7, 0x46, transit.ModePOS},
		{0x05, 0x0D, transit.ModeBus},
		{0x16, 0x01, transit.ModeMetro},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, consoleMode(tt.console, tt.process), "console %02X process %02X", tt.console, tt.process)
	}
}
