package nextfare

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

var systemCode = []byte{0x5A, 0x5B, 0x20, 0x21, 0x22, 0x23}

func packTime(t time.Time) uint32 {
	minute := t.Hour()*60 + t.Minute()
	return uint32(t.Day()) | uint32(t.Month())<<5 | uint32(t.Year()-2000)<<9 | uint32(minute)<<16
}

func balanceBlock(balance int16, version byte) []byte {
	b := make([]byte, 16)
	b[0] = recordBalance
	binary.LittleEndian.PutUint16(b[2:], uint16(balance))
	b[13] = version
	return b
}

func topUpBlock(at time.Time, amount uint16) []byte {
	b := make([]byte, 16)
	b[0] = recordTopUp
	binary.LittleEndian.PutUint32(b[2:], packTime(at))
	binary.LittleEndian.PutUint16(b[6:], amount)
	return b
}

func tapBlock(at time.Time, mode byte, journey uint16, value int16, station uint16) []byte {
	b := make([]byte, 16)
	b[0] = recordTap
	b[1] = mode
	binary.LittleEndian.PutUint32(b[2:], packTime(at))
	binary.LittleEndian.PutUint16(b[6:], journey<<5)
	binary.LittleEndian.PutUint16(b[8:], uint16(value))
	binary.LittleEndian.PutUint16(b[12:], station)
	return b
}

func dataSector(index int, blocks ...[]byte) *card.DataClassicSector {
	s := &card.DataClassicSector{Index: index}
	for i, b := range blocks {
		s.Blocks = append(s.Blocks, card.ClassicBlock{Index: i, Data: b})
	}
	// Trailer, never a record.
	trailer := make([]byte, 16)
	trailer[0] = recordTap
	s.Blocks = append(s.Blocks, card.ClassicBlock{Index: len(blocks), Data: trailer})
	return s
}

func empty() []byte { return make([]byte, 16) }

func sector0(serial []byte) *card.DataClassicSector {
	block0 := append(append([]byte(nil), serial...), make([]byte, 12)...)
	block1 := append(append([]byte{0x00}, manufacturer...), systemCode...)
	block1 = append(block1, 0x00)
	return dataSector(0, block0, block1, empty())
}

func nextfareCard(sectors ...card.ClassicSector) *card.ClassicCard {
	all := append([]card.ClassicSector{sector0([]byte{0x15, 0xCD, 0x5B, 0x07})}, sectors...)
	return &card.ClassicCard{Sectors: all}
}

func TestCheck(t *testing.T) {
	other := sector0([]byte{1, 2, 3, 4})
	other.Blocks[1].Data[3] = 0x00

	tests := []struct {
		name string
		card card.Card
		want bool
	}{
		{"nextfare", nextfareCard(), true},
		{"wrong manufacturer", &card.ClassicCard{Sectors: []card.ClassicSector{other}}, false},
		{"sector 0 locked", &card.ClassicCard{Sectors: []card.ClassicSector{&card.UnauthorizedClassicSector{Index: 0}}}, false},
		{"not classic", &card.FelicaCard{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Factory{}.Check(tt.card))
		})
	}
}

func TestIdentify(t *testing.T) {
	id, err := Factory{}.Identify(nextfareCard())
	require.NoError(t, err)
	assert.Equal(t, Name, id.Name)
	assert.Equal(t, "0160 0012 3456 7893", id.Serial)
	assert.True(t, transit.LuhnValid(id.Serial))

	c := &card.ClassicCard{Sectors: []card.ClassicSector{sector0([]byte{0xB1, 0x68, 0xDE, 0x3A})}}
	id, err = Factory{}.Identify(c)
	require.NoError(t, err)
	assert.Equal(t, "0160 0098 7654 3213", id.Serial)
}

func TestIdentifyUnreadableSerial(t *testing.T) {
	c := &card.ClassicCard{Sectors: []card.ClassicSector{&card.UnauthorizedClassicSector{Index: 0}}}
	_, err := Factory{}.Identify(c)
	assert.Error(t, err)
}

func TestUnpackTime(t *testing.T) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, 0x01FE3065)
	assert.Equal(t, time.Date(2024, time.March, 5, 8, 30, 0, 0, time.UTC), unpackTime(b))
}

func TestParseBalance(t *testing.T) {
	tests := []struct {
		name    string
		sectors []card.ClassicSector
		want    int64
	}{
		{"no records", nil, 0},
		{"highest version", []card.ClassicSector{
			dataSector(1, balanceBlock(1000, 5), balanceBlock(850, 6), empty()),
		}, 850},
		{"version wrapped", []card.ClassicSector{
			dataSector(1, balanceBlock(100, 250), balanceBlock(200, 2), empty()),
		}, 200},
		{"negative", []card.ClassicSector{
			dataSector(1, balanceBlock(-150, 1), empty(), empty()),
		}, -150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Factory{}.Parse(nextfareCard(tt.sectors...))
			require.NoError(t, err)
			require.NotNil(t, report.Balance)
			assert.Equal(t, tt.want, report.Balance.Amount)
			assert.Equal(t, transit.XXX, report.Balance.Currency)
		})
	}
}

func TestParseTripsAndRefills(t *testing.T) {
	morning := time.Date(2024, time.March, 5, 8, 30, 0, 0, time.UTC)

	c := nextfareCard(
		dataSector(1,
			balanceBlock(1450, 3),
			tapBlock(morning, 1, 7, 0, 10),
			tapBlock(morning.Add(20*time.Minute), 1, 7, -350, 20),
		),
		dataSector(2,
			tapBlock(morning.Add(time.Hour), 2, 8, -200, 0),
			topUpBlock(morning.Add(-time.Hour), 2000),
			empty(),
		),
		&card.UnauthorizedClassicSector{Index: 3},
	)

	report, err := Factory{}.Parse(c)
	require.NoError(t, err)

	assert.Equal(t, "0160 0012 3456 7893", report.Serial)
	assert.Equal(t, int64(1450), report.Balance.Amount)

	require.Len(t, report.Trips, 2)
	latest := report.Trips[0]
	assert.Equal(t, morning.Add(time.Hour), latest.Start)
	assert.True(t, latest.End.IsZero())
	assert.Empty(t, latest.StartStation)
	assert.Equal(t, int64(200), latest.Fare.Amount)

	merged := report.Trips[1]
	assert.Equal(t, morning, merged.Start)
	assert.Equal(t, morning.Add(20*time.Minute), merged.End)
	assert.Equal(t, "Station 10", merged.StartStation)
	assert.Equal(t, "Station 20", merged.EndStation)
	assert.Equal(t, int64(350), merged.Fare.Amount)
	assert.Equal(t, "Journey 7", merged.Route)

	assert.True(t, report.HasUnknownStations)

	require.Len(t, report.Refills, 1)
	assert.Equal(t, int64(2000), report.Refills[0].Amount.Amount)
	assert.Equal(t, morning.Add(-time.Hour), report.Refills[0].Time)

	require.Len(t, report.Info, 1)
	assert.Equal(t, "5A5B20212223", report.Info[0].Value)
}

func TestParseDoesNotMergeDifferentModes(t *testing.T) {
	at := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)
	c := nextfareCard(dataSector(1,
		tapBlock(at, 1, 4, 0, 1),
		tapBlock(at.Add(time.Minute), 2, 4, -300, 2),
		empty(),
	))

	report, err := Factory{}.Parse(c)
	require.NoError(t, err)
	require.Len(t, report.Trips, 2)
	assert.False(t, report.HasUnknownStations)
	for _, trip := range report.Trips {
		assert.True(t, trip.End.IsZero())
	}
}
