package myki

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/transit"
)

// serialFile holds serial 123 / 456; the card stores it byte-reversed.
var serialFile = []byte{
	0x7B, 0x00, 0x00, 0x00,
	0xC8, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

func mykiCard(files ...card.DesfireFile) *card.DesfireCard {
	return &card.DesfireCard{Applications: []card.DesfireApplication{
		{ID: appIDPrimary},
		{ID: appIDSerial, Files: files},
	}}
}

func TestCheck(t *testing.T) {
	assert.True(t, Factory{}.Check(mykiCard()))

	onlyOne := &card.DesfireCard{Applications: []card.DesfireApplication{{ID: appIDSerial}}}
	assert.False(t, Factory{}.Check(onlyOne))
	assert.False(t, Factory{}.Check(&card.ClassicCard{}))
}

func TestIdentify(t *testing.T) {
	c := mykiCard(&card.StandardDesfireFile{ID: serialFileID, Data: serialFile})

	id, err := Factory{}.Identify(c)
	require.NoError(t, err)
	assert.Equal(t, "Myki", id.Name)
	assert.Equal(t, "000123000004564", id.Serial)
	assert.True(t, transit.LuhnValid(id.Serial))

	report, err := Factory{}.Parse(c)
	require.NoError(t, err)
	assert.Equal(t, id.Serial, report.Serial)
	assert.Nil(t, report.Balance)
}

func TestIdentifyLockedSerial(t *testing.T) {
	c := mykiCard(&card.UnauthorizedDesfireFile{ID: serialFileID})
	_, err := Factory{}.Identify(c)
	assert.Error(t, err)
}
