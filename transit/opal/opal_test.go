package opal

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

func opalCard(t *testing.T, h string) *card.DesfireCard {
	t.Helper()
	data, err := hex.DecodeString(h)
	require.NoError(t, err)
	return &card.DesfireCard{Applications: []card.DesfireApplication{{
		ID:    appID,
		Files: []card.DesfireFile{&card.StandardDesfireFile{ID: fileID, Data: data}},
	}}}
}

func TestParseRecord(t *testing.T) {
	c := opalCard(t, "87D61200E004002A0014CC44A4133930")

	r, err := ParseRecord(c.Application(appID).FileData(fileID))
	require.NoError(t, err)
	assert.Equal(t, Record{
		Checksum:          12345,
		WeeklyTrips:       1,
		AutoTopUp:         false,
		Action:            ActionJourneyCompletedDistance,
		Vehicle:           2,
		Minute:            546,
		Day:               13061,
		Balance:           336,
		TransactionNumber: 39,
		LastDigit:         0,
		SerialNumber:      1234567,
	}, r)
	assert.Equal(t, "3085 2200 1234 5670", r.Serial())
	assert.True(t, r.LastTransaction().Equal(time.Date(2015, time.October, 4, 22, 6, 0, 0, time.UTC)))
}

func TestParseRecordShort(t *testing.T) {
	_, err := ParseRecord(make([]byte, 15))
	assert.Error(t, err)
}

func TestLastTransactionFollowsDST(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want time.Time
	}{
		{"daylight time", "85D25E07230520A70044DA380419FFFF", time.Date(2018, time.March, 30, 22, 0, 0, 0, time.UTC)},
		{"standard time", "85D25E07430520A70048DA380419FFFF", time.Date(2018, time.March, 31, 23, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Factory{}.Parse(opalCard(t, tt.hex))
			require.NoError(t, err)
			require.Len(t, report.Trips, 1)
			assert.True(t, report.Trips[0].Start.Equal(tt.want), "got %s", report.Trips[0].Start.UTC())
			assert.Equal(t, int64(1337), report.Balance.Amount)
			assert.Equal(t, transit.ModeTrain, report.Trips[0].Mode)
			assert.Equal(t, "Transfer, same mode", report.Trips[0].Route)
		})
	}
}

func TestNegativeBalance(t *testing.T) {
	data := make([]byte, 16)
	// Balance field is bits 54..74 of the reversed buffer; all ones is -1.
	rev := make([]byte, 16)
	for i := 54; i < 75; i++ {
		rev[i/8] |= 0x80 >> uint(i%8)
	}
	copy(data, transit.Reverse(rev))

	r, err := ParseRecord(data)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), r.Balance)
	assert.Zero(t, r.TransactionNumber)
	assert.Zero(t, r.Day)
}

func TestFactory(t *testing.T) {
	c := opalCard(t, "87D61200E004002A0014CC44A4133930")

	assert.True(t, Factory{}.Check(c))
	assert.False(t, Factory{}.Check(&card.DesfireCard{}))
	assert.False(t, Factory{}.Check(&card.CEPASCard{}))

	id, err := Factory{}.Identify(c)
	require.NoError(t, err)
	assert.Equal(t, transit.Identity{Name: "Opal", Serial: "3085 2200 1234 5670"}, *id)

	report, err := Factory{}.Parse(c)
	require.NoError(t, err)
	assert.Equal(t, id.Serial, report.Serial)
	assert.Equal(t, "AUD 3.36", report.Balance.String())
	assert.Equal(t, transit.ModeBus, report.Trips[0].Mode)
	assert.Contains(t, report.Info, transit.InfoItem{Label: "Checksum", Value: "3039"})
	assert.Contains(t, report.Info, transit.InfoItem{Label: "Weekly trips", Value: "1"})

	id, err = Factory{}.Identify(opalCard(t, "85D25E07230520A70044DA380419FFFF"))
	require.NoError(t, err)
	assert.Equal(t, "3085 2212 3654 7893", id.Serial)
}

func TestLockedStateFile(t *testing.T) {
	c := &card.DesfireCard{Applications: []card.DesfireApplication{{
		ID:    appID,
		Files: []card.DesfireFile{&card.UnauthorizedDesfireFile{ID: fileID}},
	}}}
	_, err := Factory{}.Identify(c)
	assert.Error(t, err)
	_, err = Factory{}.Parse(c)
	assert.Error(t, err)
}
