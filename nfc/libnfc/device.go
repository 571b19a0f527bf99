package libnfc

import (
	"encoding/hex"
	"fmt"

	"github.com/clausecker/freefare"
	gonfc "github.com/clausecker/nfc/v2"
	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/nfc"
)

var (
	modISO14443A = gonfc.Modulation{Type: gonfc.ISO14443a, BaudRate: gonfc.Nbr106}
	modFelica    = gonfc.Modulation{Type: gonfc.Felica, BaudRate: gonfc.Nbr212}
)

// felicaPollingPayload polls every system code with no request data.
var felicaPollingPayload = []byte{0x00, 0xFF, 0xFF, 0x00, 0x00}

// transceiveTimeout bounds one exchange, in milliseconds. Zero would let a
// silent target block the read forever.
const transceiveTimeout = 1000

// device implements nfc.Device on top of a libnfc device.
type device struct {
	dev    gonfc.Device
	logger *zap.Logger
}

func newDevice(dev gonfc.Device, logger *zap.Logger) *device {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &device{dev: dev, logger: logger}
}

func (d *device) Close() error {
	return d.dev.Close()
}

func (d *device) String() string {
	return d.dev.String()
}

// transceive exchanges raw bytes with the selected target.
func (d *device) transceive(txData []byte) ([]byte, error) {
	var rxData [262]byte // Max buffer size for NFC
	count, err := d.dev.InitiatorTransceiveBytes(txData, rxData[:], transceiveTimeout)
	if err != nil {
		if nfc.IsTimeoutError(err) || nfc.IsIOError(err) {
			return nil, nfc.NewCardRemovedError(err)
		}
		return nil, nfc.NewChannelError("libnfc.Transceive", err)
	}
	return rxData[:count], nil
}

// Tags polls for tags on the device.
// Freefare-supported tags (Classic, Ultralight, DESFire) are found first, then
// remaining ISO14443-4 targets, then FeliCa targets.
func (d *device) Tags() ([]nfc.Tag, error) {
	var found []nfc.Tag
	processed := make(map[string]bool)

	ffTags, ffErr := freefare.GetTags(d.dev)
	if ffErr != nil {
		d.logger.Debug("freefare tag enumeration failed", zap.Error(ffErr))
	}
	for _, ffTag := range ffTags {
		uid, err := hex.DecodeString(ffTag.UID())
		if err != nil || processed[hex.EncodeToString(uid)] {
			continue
		}
		processed[hex.EncodeToString(uid)] = true

		switch t := ffTag.(type) {
		case freefare.ClassicTag:
			found = append(found, newFreefareClassic(t, uid))
		case freefare.UltralightTag:
			found = append(found, newFreefareUltralight(t, uid))
		case freefare.DESFireTag:
			found = append(found, newIsoDep(d, uid, nfc.TechDESFire))
		default:
			d.logger.Debug("ignoring freefare tag", zap.String("uid", ffTag.UID()), zap.Any("type", ffTag.Type()))
		}
	}

	targets, listErr := d.dev.InitiatorListPassiveTargets(modISO14443A)
	if listErr != nil {
		d.logger.Debug("ISO14443A polling failed", zap.Error(listErr))
	}
	for _, target := range targets {
		isoA, ok := target.(*gonfc.ISO14443aTarget)
		if !ok || isoA.UIDLen <= 0 || int(isoA.UIDLen) > len(isoA.UID) {
			continue
		}
		uid := append([]byte(nil), isoA.UID[:int(isoA.UIDLen)]...)
		key := hex.EncodeToString(uid)
		if processed[key] {
			continue
		}
		processed[key] = true

		if nfc.DetectFromSAK(isoA.Sak).Technology() == nfc.TechISODep {
			found = append(found, newIsoDep(d, uid, nfc.TechISODep))
		} else if len(found) == 0 {
			return nil, nfc.NewUnsupportedTagError(fmt.Sprintf("SAK %02X", isoA.Sak))
		}
	}

	felicaTargets, felicaErr := d.dev.InitiatorListPassiveTargets(modFelica)
	if felicaErr != nil {
		d.logger.Debug("FeliCa polling failed", zap.Error(felicaErr))
	}
	for _, target := range felicaTargets {
		ft, ok := target.(*gonfc.FelicaTarget)
		if !ok {
			continue
		}
		key := hex.EncodeToString(ft.ID[:])
		if processed[key] {
			continue
		}
		processed[key] = true
		found = append(found, newFelica(d, ft.ID[:], ft.Pad[:]))
	}

	if len(found) == 0 && ffErr != nil && listErr != nil && felicaErr != nil {
		return nil, nfc.NewChannelError("libnfc.Tags", listErr)
	}
	return found, nil
}
