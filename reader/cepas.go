package reader

import (
	"context"

	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
)

const (
	cepasCmdReadPurse = 0x32
	// cepasHistoryChunk is the most history records one request returns.
	cepasHistoryChunk = 15
	// cepasLogCountOffset is the position of the log record count in a purse.
	cepasLogCountOffset = 40
)

// cepasPurseFile holds the purses.
const cepasPurseFile = 0x4000

// cepasProtocol frames CEPAS commands: 90 cmd p1 p2 lc data. The lc byte is
// sent as given, not computed from data. The trailer must be 90 00; anything
// else maps to a small set of errors.
type cepasProtocol struct {
	tag nfc.IsoDepTag
}

func (p *cepasProtocol) send(op string, cmd, p1, p2, lc byte, params []byte) ([]byte, error) {
	frame := []byte{nfc.CLADESFire, cmd, p1, p2, lc}
	frame = append(frame, params...)

	raw, err := p.tag.Transceive(frame)
	if err != nil {
		return nil, err
	}
	resp, err := nfc.ParseAPDUResponse(raw)
	if err != nil {
		return nil, nfc.NewProtocolError(op, "response too short: %d bytes", len(raw))
	}

	if resp.SW1 != nfc.SW1Success {
		switch resp.SW1 {
		case 0x6B:
			return nil, nfc.Errorf(nfc.ErrCodeNotFound, op, "file %d was an invalid file", p1)
		case 0x67:
			return nil, nfc.Errorf(nfc.ErrCodeInvalidData, op, "invalid file size response")
		default:
			return nil, nfc.NewProtocolError(op, "generic invalid response: %04X", resp.StatusWord())
		}
	}

	switch resp.SW2 {
	case nfc.SW2Success:
		return resp.Data, nil
	case nfc.DFStatusPermissionDenied:
		return nil, nfc.Errorf(nfc.ErrCodeAuthFailed, op, "permission denied")
	default:
		return nil, nfc.NewProtocolError(op, "unknown status code: %02X", resp.SW2)
	}
}

func (p *cepasProtocol) selectPurseFile() error {
	_, err := p.tag.Transceive(nfc.SelectFileAPDU(cepasPurseFile))
	return err
}

func (p *cepasProtocol) purse(id int) ([]byte, error) {
	return p.send("ReadPurse", cepasCmdReadPurse, byte(id), 0x00, 0x00, []byte{0x00})
}

// history reads count records in at most two requests of 15.
func (p *cepasProtocol) history(id, count int) ([]byte, error) {
	first := count
	if first > cepasHistoryChunk {
		first = cepasHistoryChunk
	}
	data, err := p.send("ReadHistory", cepasCmdReadPurse, byte(id), 0x00, 0x01,
		[]byte{0x00, byte(first * card.CEPASTransactionSize)})
	if err != nil {
		return nil, err
	}

	if count > cepasHistoryChunk {
		rest, err := p.send("ReadHistory", cepasCmdReadPurse, byte(id), 0x00, 0x01,
			[]byte{cepasHistoryChunk, byte((count - cepasHistoryChunk) * card.CEPASTransactionSize)})
		if err != nil {
			if nfc.IsChannelError(err) {
				return nil, err
			}
			return data, nil
		}
		data = append(data, rest...)
	}
	return data, nil
}

// CEPASReader reads the purses and histories of a CEPAS card.
type CEPASReader struct {
	opts   Options
	logger *zap.Logger
}

func NewCEPASReader(opts Options) *CEPASReader {
	return &CEPASReader{opts: opts, logger: opts.logger()}
}

// Read connects tag and reads all 16 purse slots.
func (r *CEPASReader) Read(ctx context.Context, tag nfc.IsoDepTag) (*card.RawCEPASCard, error) {
	if err := connect(tag, "ReadCEPAS"); err != nil {
		return nil, err
	}
	defer closeTag(tag, r.logger)

	return r.read(ctx, tag)
}

func (r *CEPASReader) read(ctx context.Context, tag nfc.IsoDepTag) (*card.RawCEPASCard, error) {
	proto := &cepasProtocol{tag: isoDepContext{IsoDepTag: tag, ctx: ctx}}
	raw := &card.RawCEPASCard{
		Header:    card.NewHeader(tag.ID(), r.opts.now()),
		Purses:    make([]card.RawCEPASPurse, 0, card.CEPASPurseCount),
		Histories: make([]card.RawCEPASHistory, 0),
	}

	for id := 0; id < card.CEPASPurseCount; id++ {
		if err := checkContext(ctx, "ReadCEPAS"); err != nil {
			return nil, err
		}

		purse, err := r.readPurse(proto, id)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("Purse read", zap.Int("purse", id), zap.Stringer("outcome", purse.Outcome))
		raw.Purses = append(raw.Purses, purse)
	}

	for _, purse := range raw.Purses {
		if !purse.Valid() {
			continue
		}
		if err := checkContext(ctx, "ReadCEPAS"); err != nil {
			return nil, err
		}

		history, err := r.readHistory(proto, purse)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("History read", zap.Int("purse", purse.ID), zap.Stringer("outcome", history.Outcome))
		raw.Histories = append(raw.Histories, history)
	}

	return raw, nil
}

func (r *CEPASReader) readPurse(proto *cepasProtocol, id int) (card.RawCEPASPurse, error) {
	if err := proto.selectPurseFile(); err != nil {
		if nfc.IsChannelError(err) {
			return card.RawCEPASPurse{}, err
		}
		r.logger.Debug("Select purse file failed", zap.Int("purse", id), zap.Error(err))
	}

	data, err := proto.purse(id)
	switch {
	case err == nil && len(data) == 0:
		return card.RawCEPASPurse{ID: id, Outcome: card.OutcomeInvalid, Error: "no purse found"}, nil
	case err == nil:
		return card.RawCEPASPurse{ID: id, Outcome: card.OutcomeData, Data: data}, nil
	case nfc.IsChannelError(err):
		return card.RawCEPASPurse{}, err
	case nfc.IsAuthError(err):
		return card.RawCEPASPurse{ID: id, Outcome: card.OutcomeUnauthorized, Error: err.Error()}, nil
	default:
		return card.RawCEPASPurse{ID: id, Outcome: card.OutcomeInvalid, Error: err.Error()}, nil
	}
}

func (r *CEPASReader) readHistory(proto *cepasProtocol, purse card.RawCEPASPurse) (card.RawCEPASHistory, error) {
	count := 0
	if len(purse.Data) > cepasLogCountOffset {
		count = int(purse.Data[cepasLogCountOffset])
	}

	data, err := proto.history(purse.ID, count)
	switch {
	case err == nil:
		return card.RawCEPASHistory{ID: purse.ID, Outcome: card.OutcomeData, Data: data}, nil
	case nfc.IsChannelError(err):
		return card.RawCEPASHistory{}, err
	case nfc.IsAuthError(err):
		return card.RawCEPASHistory{ID: purse.ID, Outcome: card.OutcomeUnauthorized, Error: err.Error()}, nil
	default:
		return card.RawCEPASHistory{ID: purse.ID, Outcome: card.OutcomeInvalid, Error: err.Error()}, nil
	}
}
