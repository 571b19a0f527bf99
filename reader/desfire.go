package reader

import (
	"context"

	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
)

// DesfireReader reads MIFARE DESFire cards without authenticating. Files the
// card keeps behind a key are recorded as unauthorized.
type DesfireReader struct {
	opts   Options
	logger *zap.Logger
}

func NewDesfireReader(opts Options) *DesfireReader {
	return &DesfireReader{opts: opts, logger: opts.logger()}
}

// Read connects tag and reads every application it lists.
func (r *DesfireReader) Read(ctx context.Context, tag nfc.IsoDepTag) (*card.RawDesfireCard, error) {
	if err := connect(tag, "ReadDesfire"); err != nil {
		return nil, err
	}
	defer closeTag(tag, r.logger)

	proto := &desfireProtocol{tag: isoDepContext{IsoDepTag: tag, ctx: ctx}}
	manufacturing, err := proto.manufacturingData()
	if err != nil {
		if nfc.IsChannelError(err) {
			return nil, err
		}
		r.logger.Debug("GetVersion failed", zap.Error(err))
	}
	return r.read(ctx, tag, proto, manufacturing)
}

func (r *DesfireReader) read(ctx context.Context, tag nfc.IsoDepTag, proto *desfireProtocol, manufacturing []byte) (*card.RawDesfireCard, error) {
	raw := &card.RawDesfireCard{
		Header:        card.NewHeader(tag.ID(), r.opts.now()),
		Manufacturing: manufacturing,
		Applications:  make([]card.RawDesfireApplication, 0),
	}

	appIDs, err := proto.appList()
	switch {
	case err == nil:
	case nfc.IsChannelError(err):
		return nil, err
	case nfc.IsAuthError(err):
		r.logger.Debug("Application list locked")
		raw.AppListLocked = true
	default:
		r.logger.Debug("Application list failed", zap.Error(err))
		return raw, nil
	}

	for _, appID := range appIDs {
		if err := checkContext(ctx, "ReadDesfire"); err != nil {
			return nil, err
		}

		if err := proto.selectApp(appID); err != nil {
			if nfc.IsChannelError(err) {
				return nil, err
			}
			r.logger.Debug("Skipping application", zap.Uint32("app", appID), zap.Error(err))
			continue
		}

		app, err := r.readApplication(ctx, proto, appID)
		if err != nil {
			return nil, err
		}
		raw.Applications = append(raw.Applications, *app)
	}

	return raw, nil
}

func (r *DesfireReader) readApplication(ctx context.Context, proto *desfireProtocol, appID uint32) (*card.RawDesfireApplication, error) {
	app := &card.RawDesfireApplication{ID: appID, Files: make([]card.RawDesfireFile, 0)}

	fileIDs, err := proto.fileList()
	switch {
	case err == nil:
	case nfc.IsChannelError(err):
		return nil, err
	case nfc.IsAuthError(err):
		app.DirListLocked = true
		fileIDs = make([]int, 0, desfireMaxFileID+1)
		for id := 0; id <= desfireMaxFileID; id++ {
			fileIDs = append(fileIDs, id)
		}
	default:
		r.logger.Debug("File list failed", zap.Uint32("app", appID), zap.Error(err))
		return app, nil
	}

	for _, fileID := range fileIDs {
		if err := checkContext(ctx, "ReadDesfire"); err != nil {
			return nil, err
		}

		file, err := r.readFile(proto, fileID)
		if err != nil {
			return nil, err
		}
		if file == nil {
			continue
		}
		r.logger.Debug("File read",
			zap.Uint32("app", appID),
			zap.Int("file", fileID),
			zap.Stringer("outcome", file.Outcome))
		app.Files = append(app.Files, *file)
	}
	return app, nil
}

// readFile returns nil for a file the card says does not exist.
func (r *DesfireReader) readFile(proto *desfireProtocol, fileID int) (*card.RawDesfireFile, error) {
	settings, err := proto.fileSettings(fileID)
	switch {
	case err == nil:
	case nfc.IsChannelError(err):
		return nil, err
	case nfc.IsNotFoundError(err):
		return nil, nil
	case nfc.IsAuthError(err):
		return r.readFileWithoutSettings(proto, fileID)
	default:
		return &card.RawDesfireFile{ID: fileID, Outcome: card.OutcomeInvalid, Error: err.Error()}, nil
	}

	file := &card.RawDesfireFile{ID: fileID, Settings: settings}
	if len(settings) == 0 {
		file.Outcome = card.OutcomeInvalid
		file.Error = nfc.NewProtocolError("GetFileSettings", "empty settings").Error()
		return file, nil
	}

	var data []byte
	switch settings[0] {
	case card.DesfireStandardFile, card.DesfireBackupFile:
		data, err = proto.readFile(fileID)
	case card.DesfireValueFile:
		data, err = proto.value(fileID)
	case card.DesfireLinearRecordFile, card.DesfireCyclicRecordFile:
		data, err = proto.readRecord(fileID)
	default:
		file.Outcome = card.OutcomeInvalid
		file.Error = nfc.NewProtocolError("ReadFile", "unknown file type: %02X", settings[0]).Error()
		return file, nil
	}

	switch {
	case err == nil:
		file.Outcome = card.OutcomeData
		file.Data = data
	case nfc.IsChannelError(err):
		return nil, err
	case nfc.IsAuthError(err):
		file.Outcome = card.OutcomeUnauthorized
		file.Error = err.Error()
	default:
		file.Outcome = card.OutcomeInvalid
		file.Error = err.Error()
	}
	return file, nil
}

// readFileWithoutSettings tries each read command in turn when the card
// refuses to describe the file.
func (r *DesfireReader) readFileWithoutSettings(proto *desfireProtocol, fileID int) (*card.RawDesfireFile, error) {
	var lastErr error
	for _, read := range []func(int) ([]byte, error){proto.readFile, proto.value, proto.readRecord} {
		data, err := read(fileID)
		if err == nil {
			return &card.RawDesfireFile{ID: fileID, Outcome: card.OutcomeData, Data: data}, nil
		}
		if nfc.IsChannelError(err) {
			return nil, err
		}
		lastErr = err
	}

	if nfc.IsAuthError(lastErr) {
		return &card.RawDesfireFile{ID: fileID, Outcome: card.OutcomeUnauthorized, Error: lastErr.Error()}, nil
	}
	return &card.RawDesfireFile{ID: fileID, Outcome: card.OutcomeInvalid, Error: lastErr.Error()}, nil
}
