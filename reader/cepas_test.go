package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
)

var cepasTagID = []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80}

// Bus ride of -2.00 with user data "SVC 123".
const cepasBusRecord = "31FFFF38 00000E10 5356432031323300"

func cepasPurseHex(logCount byte) string {
	purse := make([]byte, 64)
	purse[0] = 0x01
	purse[2], purse[3], purse[4] = 0x00, 0x03, 0xE8
	purse[40] = logCount
	return nfc.BytesToHex(purse) + "9000"
}

func cepasScript(t *testing.T, logCount byte, extra map[string][]string) *nfc.MockIsoDepTag {
	tag := nfc.NewMockIsoDepTag(cepasTagID)
	script := map[string][]string{
		cmdGetVersion:    {"6D00"},
		"00A40000024000": {"9000"},
		"903203000000":   {cepasPurseHex(logCount)},
		"903205000000":   {"909D"},
	}
	for k, v := range extra {
		script[k] = v
	}
	scriptIsoDep(t, tag, script, "6A82")
	return tag
}

func TestReadIsoDepAsCEPAS(t *testing.T) {
	tag := cepasScript(t, 20, map[string][]string{
		"903203000100F0": {repeatHex(cepasBusRecord, 15) + "9000"},
		"90320300010F50": {repeatHex(cepasBusRecord, 5) + "9000"},
	})

	got, err := Read(context.Background(), tag, nil, testOptions())
	require.NoError(t, err)

	raw, ok := got.(*card.RawCEPASCard)
	require.True(t, ok, "got %T", got)
	require.Len(t, raw.Purses, card.CEPASPurseCount)
	assert.Equal(t, card.CEPASPurseCount, tag.CountCalls("Transceive(00A40000024000)"))
	assert.Equal(t, 1, tag.CountCalls("Connect"))

	assert.Equal(t, card.OutcomeData, raw.Purses[3].Outcome)
	assert.Equal(t, card.OutcomeUnauthorized, raw.Purses[5].Outcome)
	assert.Equal(t, card.OutcomeInvalid, raw.Purses[0].Outcome)
	assert.Contains(t, raw.Purses[0].Error, "generic invalid response")

	require.Len(t, raw.Histories, 1)
	assert.Equal(t, 3, raw.Histories[0].ID)
	assert.Len(t, raw.Histories[0].Data, 20*card.CEPASTransactionSize)
	assert.Equal(t, 2, tag.CountCalls("Transceive(9032030001"))

	parsed, err := card.Parse(raw)
	require.NoError(t, err)
	cc := parsed.(*card.CEPASCard)
	assert.Equal(t, int32(1000), cc.Purse(3).Balance)
	history := cc.History(3)
	require.True(t, history.Valid())
	require.Len(t, history.Transactions, 20)
	assert.Equal(t, card.CEPASBus, history.Transactions[0].Type)
	assert.Equal(t, int32(-200), history.Transactions[0].Amount)
}

func TestCEPASSecondHistoryChunkFailureIgnored(t *testing.T) {
	tag := cepasScript(t, 20, map[string][]string{
		"903203000100F0": {repeatHex(cepasBusRecord, 15) + "9000"},
		"90320300010F50": {"6B00"},
	})

	raw, err := NewCEPASReader(testOptions()).Read(context.Background(), tag)
	require.NoError(t, err)
	require.Len(t, raw.Histories, 1)
	assert.Equal(t, card.OutcomeData, raw.Histories[0].Outcome)
	assert.Len(t, raw.Histories[0].Data, 15*card.CEPASTransactionSize)
}

func TestCEPASShortHistorySingleRequest(t *testing.T) {
	tag := cepasScript(t, 5, map[string][]string{
		"90320300010050": {repeatHex(cepasBusRecord, 5) + "9000"},
	})

	raw, err := NewCEPASReader(testOptions()).Read(context.Background(), tag)
	require.NoError(t, err)
	assert.Equal(t, 1, tag.CountCalls("Transceive(9032030001"))
	assert.Len(t, raw.Histories[0].Data, 5*card.CEPASTransactionSize)
}

func TestCEPASHistoryErrors(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		outcome card.Outcome
		msg     string
	}{
		{"permission denied", "909D", card.OutcomeUnauthorized, "permission denied"},
		{"invalid file", "6B00", card.OutcomeInvalid, "file 3 was an invalid file"},
		{"bad length", "6700", card.OutcomeInvalid, "invalid file size response"},
		{"unknown status", "9012", card.OutcomeInvalid, "unknown status code: 12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := cepasScript(t, 3, map[string][]string{"90320300010030": {tt.resp}})

			raw, err := NewCEPASReader(testOptions()).Read(context.Background(), tag)
			require.NoError(t, err)
			require.Len(t, raw.Histories, 1)
			assert.Equal(t, tt.outcome, raw.Histories[0].Outcome)
			assert.Contains(t, raw.Histories[0].Error, tt.msg)
		})
	}
}

func TestCEPASChannelLossPropagates(t *testing.T) {
	tag := cepasScript(t, 1, nil)
	scripted := tag.TransceiveFunc
	tag.TransceiveFunc = func(apdu []byte) ([]byte, error) {
		if nfc.BytesToHex(apdu) == "903207000000" {
			return nil, nfc.NewChannelError("Transceive", nil)
		}
		return scripted(apdu)
	}

	raw, err := NewCEPASReader(testOptions()).Read(context.Background(), tag)
	require.Error(t, err)
	assert.Nil(t, raw)
	assert.True(t, nfc.IsChannelError(err))
	assert.Zero(t, tag.CountCalls("Transceive(903208"))
}
