package reader

import (
	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
)

// desfireMaxFileID is the highest file number a DESFire application can hold.
const desfireMaxFileID = 31

// desfireProtocol speaks the native DESFire command set wrapped in ISO 7816
// APDUs. Responses end in 91 xx; 91 AF asks for another frame.
type desfireProtocol struct {
	tag nfc.IsoDepTag
}

func (p *desfireProtocol) send(op string, cmd byte, params []byte) ([]byte, error) {
	resp, err := p.tag.Transceive(nfc.DESFireWrapAPDU(cmd, params))
	var out []byte

	for {
		if err != nil {
			return nil, err
		}
		if len(resp) < 2 || resp[len(resp)-2] != nfc.DFSW1 {
			return nil, nfc.NewProtocolError(op, "invalid response: %s", nfc.BytesToHex(resp))
		}

		out = append(out, resp[:len(resp)-2]...)

		switch status := resp[len(resp)-1]; status {
		case nfc.DFStatusOK:
			return out, nil
		case nfc.DFStatusAdditionalFrame:
			resp, err = p.tag.Transceive(nfc.DESFireWrapAPDU(nfc.DFCmdAdditionalFrame, nil))
		case nfc.DFStatusPermissionDenied:
			return nil, nfc.Errorf(nfc.ErrCodeAuthFailed, op, "permission denied")
		case nfc.DFStatusAuthenticationErr:
			return nil, nfc.Errorf(nfc.ErrCodeAuthFailed, op, "authentication error")
		case nfc.DFStatusApplicationMissing:
			return nil, nfc.NewNotFoundError(op, "application not found")
		case nfc.DFStatusFileNotFound:
			return nil, nfc.NewNotFoundError(op, "file not found")
		default:
			return nil, nfc.NewProtocolError(op, "unknown status code: %02X", status)
		}
	}
}

func (p *desfireProtocol) manufacturingData() ([]byte, error) {
	data, err := p.send("GetVersion", nfc.DFCmdGetVersion, nil)
	if err != nil {
		return nil, err
	}
	if len(data) != card.DesfireManufacturingDataSize {
		return nil, nfc.NewProtocolError("GetVersion", "want %d bytes, got %d", card.DesfireManufacturingDataSize, len(data))
	}
	return data, nil
}

// appList returns the application IDs. Each ID is 3 bytes, most significant first.
func (p *desfireProtocol) appList() ([]uint32, error) {
	data, err := p.send("GetApplicationIDs", nfc.DFCmdGetApplicationIDs, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, len(data)/3)
	for off := 0; off+3 <= len(data); off += 3 {
		ids = append(ids, uint32(data[off])<<16|uint32(data[off+1])<<8|uint32(data[off+2]))
	}
	return ids, nil
}

func (p *desfireProtocol) selectApp(id uint32) error {
	_, err := p.send("SelectApplication", nfc.DFCmdSelectApplication,
		[]byte{byte(id >> 16), byte(id >> 8), byte(id)})
	return err
}

func (p *desfireProtocol) fileList() ([]int, error) {
	data, err := p.send("GetFileIDs", nfc.DFCmdGetFileIDs, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(data))
	for _, b := range data {
		ids = append(ids, int(b))
	}
	return ids, nil
}

func (p *desfireProtocol) fileSettings(id int) ([]byte, error) {
	return p.send("GetFileSettings", nfc.DFCmdGetFileSettings, []byte{byte(id)})
}

// readFile reads a whole standard or backup file: offset 0, length 0.
func (p *desfireProtocol) readFile(id int) ([]byte, error) {
	return p.send("ReadData", nfc.DFCmdReadData, []byte{byte(id), 0, 0, 0, 0, 0, 0})
}

// readRecord reads every record of a record file.
func (p *desfireProtocol) readRecord(id int) ([]byte, error) {
	return p.send("ReadRecords", nfc.DFCmdReadRecords, []byte{byte(id), 0, 0, 0, 0, 0, 0})
}

func (p *desfireProtocol) value(id int) ([]byte, error) {
	return p.send("GetValue", nfc.DFCmdGetValue, []byte{byte(id)})
}
