package pcsc

import (
	"fmt"

	"github.com/nedpals/davi-transit/nfc"
)

// baseTag provides common functionality for PC/SC tag implementations
type baseTag struct {
	device    *device
	uid       []byte
	connected bool
}

func (t *baseTag) ID() []byte {
	return t.uid
}

// Connect marks the tag as in use. The card connection itself is owned by the device.
func (t *baseTag) Connect() error {
	t.connected = true
	return nil
}

func (t *baseTag) Close() error {
	t.connected = false
	return nil
}

// transceive sends an APDU and returns the response data.
// Card removal detection is handled at the device layer via Transceive().
func (t *baseTag) transceive(op string, cmd []byte) ([]byte, error) {
	if !t.connected {
		return nil, nfc.Errorf(nfc.ErrCodeTagNotConnected, op, "tag not connected")
	}
	resp, err := t.device.Transceive(cmd)
	if err != nil {
		return nil, err
	}

	parsed, err := nfc.ParseAPDUResponse(resp)
	if err != nil {
		return nil, nfc.NewTransceiveError(op, err)
	}
	if !parsed.IsSuccess() && !parsed.HasMoreData() {
		return nil, nfc.NewReadError(op, parsed.Error())
	}
	return parsed.Data, nil
}

// transmitRaw sends an APDU and returns the raw response (with SW bytes).
func (t *baseTag) transmitRaw(cmd []byte) ([]byte, error) {
	if !t.connected {
		return nil, nfc.Errorf(nfc.ErrCodeTagNotConnected, "transmit", "tag not connected")
	}
	return t.device.Transceive(cmd)
}

// classicTag drives MIFARE Classic through the PC/SC storage-card pseudo-APDUs.
type classicTag struct {
	baseTag
	detected nfc.DetectedTagType
}

func newClassicTag(dev *device, uid []byte, detected nfc.DetectedTagType) *classicTag {
	return &classicTag{
		baseTag:  baseTag{device: dev, uid: uid},
		detected: detected,
	}
}

func (t *classicTag) Technology() nfc.Technology { return nfc.TechClassic }

func (t *classicTag) SectorCount() int { return nfc.ClassicSectorCount(t.detected) }

func (t *classicTag) BlockCountInSector(sector int) int { return nfc.ClassicBlockCountInSector(sector) }

func (t *classicTag) SectorToBlock(sector int) int { return nfc.ClassicSectorToBlock(sector) }

// AuthenticateSector loads key into volatile slot 0 and authenticates the sector trailer.
func (t *classicTag) AuthenticateSector(sector int, key []byte, keyB bool) (bool, error) {
	loadCmd := nfc.LoadKeyAPDU(0x00, key)
	if loadCmd == nil {
		return false, nfc.Errorf(nfc.ErrCodeInvalidData, "AuthenticateSector", "key must be 6 bytes, got %d", len(key))
	}
	resp, err := t.transmitRaw(loadCmd)
	if err != nil {
		return false, err
	}
	parsed, err := nfc.ParseAPDUResponse(resp)
	if err != nil {
		return false, nfc.NewTransceiveError("LoadKey", err)
	}
	if !parsed.IsSuccess() {
		return false, nfc.NewAuthError("LoadKey", nfc.BytesToHex(t.uid), parsed.Error())
	}

	keyType := byte(nfc.MIFAREKeyA)
	if keyB {
		keyType = nfc.MIFAREKeyB
	}
	resp, err = t.transmitRaw(nfc.MIFAREAuthAPDU(byte(nfc.ClassicTrailerBlock(sector)), keyType, 0x00))
	if err != nil {
		return false, err
	}
	parsed, err = nfc.ParseAPDUResponse(resp)
	if err != nil {
		return false, nfc.NewTransceiveError("Authenticate", err)
	}
	return parsed.IsSuccess(), nil
}

func (t *classicTag) ReadBlock(block int) ([]byte, error) {
	return t.transceive(fmt.Sprintf("ReadBlock(%d)", block), nfc.ReadBinaryAPDU(byte(block), nfc.ClassicBlockSize))
}

// ultralightTag reads Ultralight pages with READ BINARY.
type ultralightTag struct {
	baseTag
	detected nfc.DetectedTagType
}

func newUltralightTag(dev *device, uid []byte, detected nfc.DetectedTagType) *ultralightTag {
	return &ultralightTag{
		baseTag:  baseTag{device: dev, uid: uid},
		detected: detected,
	}
}

func (t *ultralightTag) Technology() nfc.Technology { return nfc.TechUltralight }

func (t *ultralightTag) PageCount() int { return nfc.UltralightPageCount(t.detected) }

func (t *ultralightTag) ReadPages(page int) ([]byte, error) {
	return t.transceive(fmt.Sprintf("ReadPages(%d)", page), nfc.ReadBinaryAPDU(byte(page), 16))
}

// isoDepTag passes APDUs straight through to an ISO14443-4 card.
type isoDepTag struct {
	baseTag
}

func newIsoDepTag(dev *device, uid []byte) *isoDepTag {
	return &isoDepTag{baseTag: baseTag{device: dev, uid: uid}}
}

func (t *isoDepTag) Technology() nfc.Technology { return nfc.TechISODep }

func (t *isoDepTag) Transceive(apdu []byte) ([]byte, error) {
	return t.transmitRaw(apdu)
}

// felicaTag sends FeliCa frames through the reader's direct transmit command.
type felicaTag struct {
	baseTag
}

func newFelicaTag(dev *device, uid []byte) *felicaTag {
	return &felicaTag{baseTag: baseTag{device: dev, uid: uid}}
}

func (t *felicaTag) Technology() nfc.Technology { return nfc.TechFelica }

// PMm is not exposed by PC/SC readers.
func (t *felicaTag) PMm() []byte { return nil }

func (t *felicaTag) Transceive(frame []byte) ([]byte, error) {
	data, err := t.transceive("FelicaTransceive", nfc.DirectTransmitAPDU(nfc.FelicaFrame(frame)))
	if err != nil {
		return nil, err
	}
	return nfc.StripFelicaLength(data)
}
