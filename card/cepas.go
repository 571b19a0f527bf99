package card

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/nedpals/davi-transit/nfc"
)

// CEPAS record sizes.
const (
	CEPASPurseCount        = 16
	CEPASTransactionSize   = 16
	cepasPurseFixedSize    = 62
	cepasLastTxnRecordSize = 16
)

// cepasEpoch is 1995-01-01 00:00 Singapore time.
var cepasEpoch = time.Date(1995, time.January, 1, 0, 0, 0, 0, time.FixedZone("SGT", 8*3600))

// CEPASTransactionType is the first byte of a history record.
type CEPASTransactionType byte

const (
	CEPASRetail     CEPASTransactionType = 0x01
	CEPASTopUpAlt   CEPASTransactionType = 0x03
	CEPASService    CEPASTransactionType = 0x04
	CEPASCreation   CEPASTransactionType = 0x05
	CEPASMRT        CEPASTransactionType = 0x30
	CEPASBus        CEPASTransactionType = 0x31
	CEPASTopUp      CEPASTransactionType = 0x75
	CEPASBusRefund  CEPASTransactionType = 0x76
	CEPASCreationF0 CEPASTransactionType = 0xF0
)

func (t CEPASTransactionType) String() string {
	switch t {
	case CEPASMRT:
		return "MRT"
	case CEPASTopUp, CEPASTopUpAlt:
		return "Top-up"
	case CEPASBus:
		return "Bus"
	case CEPASBusRefund:
		return "Bus refund"
	case CEPASCreation, CEPASCreationF0:
		return "Creation"
	case CEPASService:
		return "Service"
	case CEPASRetail:
		return "Retail"
	default:
		return "Unknown"
	}
}

// CEPASCard is a parsed CEPAS card.
type CEPASCard struct {
	Header
	Purses    []CEPASPurse
	Histories []CEPASHistory
}

// CEPASPurse is a decoded purse. When Outcome is not OutcomeData only ID,
// Outcome and Error are set.
type CEPASPurse struct {
	ID      int
	Outcome Outcome
	Error   string

	Version                     byte
	Status                      byte
	Balance                     int32
	AutoLoadAmount              int32
	CAN                         []byte
	CSN                         []byte
	ExpiryDate                  time.Time
	CreationDate                time.Time
	LastCreditTRP               uint32
	LastCreditHeader            []byte
	LogRecordCount              int
	IssuerDataLength            int
	LastTransactionTRP          uint32
	LastTransaction             *CEPASTransaction
	IssuerSpecificData          []byte
	LastTransactionDebitOptions byte
}

// Valid reports whether the purse was read and decoded.
func (p *CEPASPurse) Valid() bool { return p != nil && p.Outcome == OutcomeData }

type CEPASHistory struct {
	ID           int
	Outcome      Outcome
	Error        string
	Transactions []CEPASTransaction
}

// Valid reports whether the history was read and decoded.
func (h *CEPASHistory) Valid() bool { return h != nil && h.Outcome == OutcomeData }

// CEPASTransaction is one 16-byte history record.
type CEPASTransaction struct {
	Type     CEPASTransactionType
	Amount   int32
	Time     time.Time
	UserData string
}

// Purse returns the purse with the given ID, or nil.
func (c *CEPASCard) Purse(id int) *CEPASPurse {
	for i := range c.Purses {
		if c.Purses[i].ID == id {
			return &c.Purses[i]
		}
	}
	return nil
}

// History returns the history with the given ID, or nil.
func (c *CEPASCard) History(id int) *CEPASHistory {
	for i := range c.Histories {
		if c.Histories[i].ID == id {
			return &c.Histories[i]
		}
	}
	return nil
}

// signed24 reads a big-endian 24-bit two's-complement value.
func signed24(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if b[0]&0x80 != 0 {
		v -= 1 << 24
	}
	return v
}

func cepasDays(b []byte) time.Time {
	days := int(binary.BigEndian.Uint16(b))
	return cepasEpoch.AddDate(0, 0, days).UTC()
}

// ParseCEPASTransaction decodes one history record.
func ParseCEPASTransaction(data []byte) (CEPASTransaction, error) {
	if len(data) != CEPASTransactionSize {
		return CEPASTransaction{}, nfc.NewProtocolError("ParseCEPASTransaction",
			"want %d bytes, got %d", CEPASTransactionSize, len(data))
	}
	seconds := binary.BigEndian.Uint32(data[4:8])
	return CEPASTransaction{
		Type:     CEPASTransactionType(data[0]),
		Amount:   signed24(data[1:4]),
		Time:     cepasEpoch.Add(time.Duration(seconds) * time.Second).UTC(),
		UserData: strings.TrimRight(string(data[8:16]), "\x00"),
	}, nil
}

// ParseCEPASPurse decodes the purse bytes of a purse read.
func ParseCEPASPurse(id int, data []byte) (*CEPASPurse, error) {
	const op = "ParseCEPASPurse"
	if len(data) < cepasPurseFixedSize+1 {
		return nil, nfc.NewProtocolError(op, "purse %d: want at least %d bytes, got %d", id, cepasPurseFixedSize+1, len(data))
	}

	issuerLen := int(data[41])
	if len(data) < cepasPurseFixedSize+issuerLen+1 {
		return nil, nfc.NewProtocolError(op, "purse %d: issuer data length %d overruns %d bytes", id, issuerLen, len(data))
	}

	last, err := ParseCEPASTransaction(data[46 : 46+cepasLastTxnRecordSize])
	if err != nil {
		return nil, err
	}

	return &CEPASPurse{
		ID:                          id,
		Outcome:                     OutcomeData,
		Version:                     data[0],
		Status:                      data[1],
		Balance:                     signed24(data[2:5]),
		AutoLoadAmount:              signed24(data[5:8]),
		CAN:                         append([]byte(nil), data[8:16]...),
		CSN:                         append([]byte(nil), data[16:24]...),
		ExpiryDate:                  cepasDays(data[24:26]),
		CreationDate:                cepasDays(data[26:28]),
		LastCreditTRP:               binary.BigEndian.Uint32(data[28:32]),
		LastCreditHeader:            append([]byte(nil), data[32:40]...),
		LogRecordCount:              int(data[40]),
		IssuerDataLength:            issuerLen,
		LastTransactionTRP:          binary.BigEndian.Uint32(data[42:46]),
		LastTransaction:             &last,
		IssuerSpecificData:          append([]byte(nil), data[62:62+issuerLen]...),
		LastTransactionDebitOptions: data[62+issuerLen],
	}, nil
}

// ParseCEPASHistory splits a history buffer into records. A trailing partial
// record is a protocol error.
func ParseCEPASHistory(data []byte) ([]CEPASTransaction, error) {
	if len(data)%CEPASTransactionSize != 0 {
		return nil, nfc.NewProtocolError("ParseCEPASHistory",
			"history length %d is not a multiple of %d", len(data), CEPASTransactionSize)
	}
	txns := make([]CEPASTransaction, 0, len(data)/CEPASTransactionSize)
	for off := 0; off < len(data); off += CEPASTransactionSize {
		t, err := ParseCEPASTransaction(data[off : off+CEPASTransactionSize])
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func parseCEPAS(raw *RawCEPASCard) *CEPASCard {
	out := &CEPASCard{
		Header:    raw.Header.clone(),
		Purses:    make([]CEPASPurse, 0, len(raw.Purses)),
		Histories: make([]CEPASHistory, 0, len(raw.Histories)),
	}

	for _, rp := range raw.Purses {
		if rp.Outcome != OutcomeData {
			out.Purses = append(out.Purses, CEPASPurse{ID: rp.ID, Outcome: rp.Outcome, Error: rp.Error})
			continue
		}
		p, err := ParseCEPASPurse(rp.ID, rp.Data)
		if err != nil {
			out.Purses = append(out.Purses, CEPASPurse{ID: rp.ID, Outcome: OutcomeInvalid, Error: err.Error()})
			continue
		}
		out.Purses = append(out.Purses, *p)
	}

	for _, rh := range raw.Histories {
		h := CEPASHistory{ID: rh.ID, Outcome: rh.Outcome, Error: rh.Error}
		if rh.Outcome == OutcomeData {
			txns, err := ParseCEPASHistory(rh.Data)
			if err != nil {
				h.Outcome = OutcomeInvalid
				h.Error = err.Error()
			} else {
				h.Transactions = txns
			}
		}
		out.Histories = append(out.Histories, h)
	}
	return out
}
