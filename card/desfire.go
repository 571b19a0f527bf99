package card

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nedpals/davi-transit/nfc"
)

// DESFire file types, byte 0 of the file settings.
const (
	DesfireStandardFile     byte = 0x00
	DesfireBackupFile       byte = 0x01
	DesfireValueFile        byte = 0x02
	DesfireLinearRecordFile byte = 0x03
	DesfireCyclicRecordFile byte = 0x04
)

// DesfireManufacturingDataSize is the length of the GetVersion response.
const DesfireManufacturingDataSize = 28

// DesfireCard is a parsed DESFire card.
type DesfireCard struct {
	Header
	Manufacturing *DesfireManufacturingData
	AppListLocked bool
	Applications  []DesfireApplication
}

// DesfireManufacturingData is the decoded GetVersion response.
type DesfireManufacturingData struct {
	HWVendorID     byte
	HWType         byte
	HWSubType      byte
	HWMajorVersion byte
	HWMinorVersion byte
	HWStorageSize  byte
	HWProtocol     byte
	SWVendorID     byte
	SWType         byte
	SWSubType      byte
	SWMajorVersion byte
	SWMinorVersion byte
	SWStorageSize  byte
	SWProtocol     byte
	UID            []byte
	BatchNo        []byte
	WeekProd       byte
	YearProd       byte
}

// ParseDesfireManufacturingData decodes the 28-byte GetVersion response.
func ParseDesfireManufacturingData(data []byte) (*DesfireManufacturingData, error) {
	if len(data) != DesfireManufacturingDataSize {
		return nil, nfc.NewProtocolError("ParseDesfireManufacturingData",
			"want %d bytes, got %d", DesfireManufacturingDataSize, len(data))
	}
	return &DesfireManufacturingData{
		HWVendorID:     data[0],
		HWType:         data[1],
		HWSubType:      data[2],
		HWMajorVersion: data[3],
		HWMinorVersion: data[4],
		HWStorageSize:  data[5],
		HWProtocol:     data[6],
		SWVendorID:     data[7],
		SWType:         data[8],
		SWSubType:      data[9],
		SWMajorVersion: data[10],
		SWMinorVersion: data[11],
		SWStorageSize:  data[12],
		SWProtocol:     data[13],
		UID:            append([]byte(nil), data[14:21]...),
		BatchNo:        append([]byte(nil), data[21:26]...),
		WeekProd:       data[26],
		YearProd:       data[27],
	}, nil
}

type DesfireApplication struct {
	ID            uint32
	DirListLocked bool
	Files         []DesfireFile
}

// Application returns the application with the given ID, or nil.
func (c *DesfireCard) Application(id uint32) *DesfireApplication {
	for i := range c.Applications {
		if c.Applications[i].ID == id {
			return &c.Applications[i]
		}
	}
	return nil
}

// File returns the file with the given ID, or nil.
func (a *DesfireApplication) File(id int) DesfireFile {
	if a == nil {
		return nil
	}
	for _, f := range a.Files {
		if f.FileID() == id {
			return f
		}
	}
	return nil
}

// FileData returns the body of a readable file, or nil. Record files return
// their records concatenated.
func (a *DesfireApplication) FileData(id int) []byte {
	switch f := a.File(id).(type) {
	case *StandardDesfireFile:
		return f.Data
	case *RecordDesfireFile:
		return f.Data
	case *ValueDesfireFile:
		return f.Data
	default:
		return nil
	}
}

// AllUnauthorized reports whether the card has at least one file and every
// file is unauthorized.
func (c *DesfireCard) AllUnauthorized() bool {
	seen := false
	for _, app := range c.Applications {
		for _, f := range app.Files {
			if _, ok := f.(*UnauthorizedDesfireFile); !ok {
				return false
			}
			seen = true
		}
	}
	return seen
}

// DesfireFile is one of *StandardDesfireFile, *RecordDesfireFile,
// *ValueDesfireFile, *UnauthorizedDesfireFile or *InvalidDesfireFile.
type DesfireFile interface {
	FileID() int
	isDesfireFile()
}

// StandardDesfireFile is a standard or backup data file. It is also used for
// a file read without settings, in which case Settings is nil.
type StandardDesfireFile struct {
	ID       int
	Settings DesfireFileSettings
	Data     []byte
}

type RecordDesfireFile struct {
	ID       int
	Settings *RecordFileSettings
	Records  [][]byte
	Data     []byte
}

type ValueDesfireFile struct {
	ID       int
	Settings *ValueFileSettings
	Value    int32
	Data     []byte
}

type UnauthorizedDesfireFile struct {
	ID       int
	Settings DesfireFileSettings
	Error    string
}

type InvalidDesfireFile struct {
	ID       int
	Settings DesfireFileSettings
	Error    string
}

func (f *StandardDesfireFile) FileID() int     { return f.ID }
func (f *RecordDesfireFile) FileID() int       { return f.ID }
func (f *ValueDesfireFile) FileID() int        { return f.ID }
func (f *UnauthorizedDesfireFile) FileID() int { return f.ID }
func (f *InvalidDesfireFile) FileID() int      { return f.ID }

func (*StandardDesfireFile) isDesfireFile()     {}
func (*RecordDesfireFile) isDesfireFile()       {}
func (*ValueDesfireFile) isDesfireFile()        {}
func (*UnauthorizedDesfireFile) isDesfireFile() {}
func (*InvalidDesfireFile) isDesfireFile()      {}

// DesfireFileSettings is one of *StandardFileSettings, *RecordFileSettings
// or *ValueFileSettings.
type DesfireFileSettings interface {
	FileType() byte
	Common() FileSettingsCommon
}

// FileSettingsCommon holds the leading bytes shared by every settings record.
type FileSettingsCommon struct {
	Type         byte
	CommSetting  byte
	AccessRights []byte
}

type StandardFileSettings struct {
	FileSettingsCommon
	FileSize uint32
}

type RecordFileSettings struct {
	FileSettingsCommon
	RecordSize     uint32
	MaxRecords     uint32
	CurrentRecords uint32
}

type ValueFileSettings struct {
	FileSettingsCommon
	LowerLimit           int32
	UpperLimit           int32
	LimitedCreditValue   int32
	LimitedCreditEnabled bool
}

func (c FileSettingsCommon) FileType() byte            { return c.Type }
func (c FileSettingsCommon) Common() FileSettingsCommon { return c }

// ParseDesfireFileSettings decodes a GetFileSettings response. Multi-byte
// fields are stored little-endian.
func ParseDesfireFileSettings(data []byte) (DesfireFileSettings, error) {
	const op = "ParseDesfireFileSettings"
	if len(data) < 4 {
		return nil, nfc.NewProtocolError(op, "settings too short: %d bytes", len(data))
	}

	common := FileSettingsCommon{
		Type:         data[0],
		CommSetting:  data[1],
		AccessRights: append([]byte(nil), data[2:4]...),
	}
	body := data[4:]

	need := func(n int) error {
		if len(body) < n {
			return nfc.NewProtocolError(op, "file type %02X: want %d bytes after header, got %d", common.Type, n, len(body))
		}
		return nil
	}

	switch common.Type {
	case DesfireStandardFile, DesfireBackupFile:
		if err := need(3); err != nil {
			return nil, err
		}
		return &StandardFileSettings{FileSettingsCommon: common, FileSize: leUint24(body[0:3])}, nil

	case DesfireLinearRecordFile, DesfireCyclicRecordFile:
		if err := need(9); err != nil {
			return nil, err
		}
		return &RecordFileSettings{
			FileSettingsCommon: common,
			RecordSize:         leUint24(body[0:3]),
			MaxRecords:         leUint24(body[3:6]),
			CurrentRecords:     leUint24(body[6:9]),
		}, nil

	case DesfireValueFile:
		if err := need(13); err != nil {
			return nil, err
		}
		return &ValueFileSettings{
			FileSettingsCommon:   common,
			LowerLimit:           int32(reversedUint32(body[0:4])),
			UpperLimit:           int32(reversedUint32(body[4:8])),
			LimitedCreditValue:   int32(reversedUint32(body[8:12])),
			LimitedCreditEnabled: body[12] != 0x00,
		}, nil

	default:
		return nil, nfc.NewProtocolError(op, "unknown file type: %02X", common.Type)
	}
}

// leUint24 reverses a 3-byte little-endian field and reads it big-endian.
func leUint24(b []byte) uint32 {
	r := reverse(b)
	return uint32(r[0])<<16 | uint32(r[1])<<8 | uint32(r[2])
}

func reversedUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(reverse(b))
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

func parseDesfire(raw *RawDesfireCard) *DesfireCard {
	out := &DesfireCard{
		Header:        raw.Header.clone(),
		AppListLocked: raw.AppListLocked,
		Applications:  make([]DesfireApplication, 0, len(raw.Applications)),
	}
	if raw.Manufacturing != nil {
		// A malformed version block leaves Manufacturing nil; the files are
		// still usable.
		out.Manufacturing, _ = ParseDesfireManufacturingData(raw.Manufacturing)
	}
	for _, ra := range raw.Applications {
		app := DesfireApplication{
			ID:            ra.ID,
			DirListLocked: ra.DirListLocked,
			Files:         make([]DesfireFile, 0, len(ra.Files)),
		}
		for _, rf := range ra.Files {
			app.Files = append(app.Files, parseDesfireFile(rf))
		}
		out.Applications = append(out.Applications, app)
	}
	return out
}

// parseDesfireFile maps the raw outcome one to one. Settings are decoded on
// a best-effort basis for locked and invalid files; a data file needs them.
func parseDesfireFile(rf RawDesfireFile) DesfireFile {
	settings, settingsErr := parseOptionalSettings(rf.Settings)

	switch rf.Outcome {
	case OutcomeUnauthorized:
		return &UnauthorizedDesfireFile{ID: rf.ID, Settings: settings, Error: rf.Error}
	case OutcomeInvalid:
		return &InvalidDesfireFile{ID: rf.ID, Settings: settings, Error: rf.Error}
	case OutcomeData:
	default:
		return &InvalidDesfireFile{ID: rf.ID, Settings: settings, Error: fmt.Sprintf("unknown outcome %d", int(rf.Outcome))}
	}

	if settingsErr != nil {
		return &InvalidDesfireFile{ID: rf.ID, Error: settingsErr.Error()}
	}

	data := bytes.Clone(rf.Data)
	switch s := settings.(type) {
	case nil:
		return &StandardDesfireFile{ID: rf.ID, Data: data}
	case *StandardFileSettings:
		return &StandardDesfireFile{ID: rf.ID, Settings: s, Data: data}
	case *RecordFileSettings:
		return &RecordDesfireFile{ID: rf.ID, Settings: s, Records: splitRecords(data, int(s.RecordSize)), Data: data}
	case *ValueFileSettings:
		if len(data) != 4 {
			return &InvalidDesfireFile{
				ID:       rf.ID,
				Settings: s,
				Error:    nfc.NewProtocolError("parseDesfireFile", "value file: want 4 bytes, got %d", len(data)).Error(),
			}
		}
		return &ValueDesfireFile{ID: rf.ID, Settings: s, Value: int32(binary.LittleEndian.Uint32(data)), Data: data}
	default:
		return &InvalidDesfireFile{ID: rf.ID, Error: fmt.Sprintf("unexpected settings %T", settings)}
	}
}

// parseOptionalSettings decodes raw when present.
func parseOptionalSettings(raw []byte) (DesfireFileSettings, error) {
	if raw == nil {
		return nil, nil
	}
	s, err := ParseDesfireFileSettings(raw)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func splitRecords(data []byte, size int) [][]byte {
	if size <= 0 {
		return nil
	}
	records := make([][]byte, 0, len(data)/size)
	for off := 0; off+size <= len(data); off += size {
		records = append(records, data[off:off+size])
	}
	return records
}
