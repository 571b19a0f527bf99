package libnfc

import (
	"fmt"

	"github.com/clausecker/freefare"
	gonfc "github.com/clausecker/nfc/v2"

	"github.com/nedpals/davi-transit/nfc"
)

// freefareClassic implements nfc.ClassicTag on top of libfreefare.
type freefareClassic struct {
	tag      freefare.ClassicTag
	uid      []byte
	detected nfc.DetectedTagType
}

func newFreefareClassic(tag freefare.ClassicTag, uid []byte) *freefareClassic {
	detected := nfc.DetectedClassic1K
	if tag.Type() == freefare.Classic4k {
		detected = nfc.DetectedClassic4K
	}
	return &freefareClassic{tag: tag, uid: uid, detected: detected}
}

func (c *freefareClassic) ID() []byte                 { return c.uid }
func (c *freefareClassic) Technology() nfc.Technology { return nfc.TechClassic }
func (c *freefareClassic) Connect() error             { return c.tag.Connect() }
func (c *freefareClassic) Close() error               { return c.tag.Disconnect() }

func (c *freefareClassic) SectorCount() int { return nfc.ClassicSectorCount(c.detected) }

func (c *freefareClassic) BlockCountInSector(sector int) int {
	return nfc.ClassicBlockCountInSector(sector)
}

func (c *freefareClassic) SectorToBlock(sector int) int { return nfc.ClassicSectorToBlock(sector) }

// AuthenticateSector authenticates against the sector trailer. A rejected key
// halts the card, so the tag is reselected before the next attempt; a failed
// reselect means the card left the field.
func (c *freefareClassic) AuthenticateSector(sector int, key []byte, keyB bool) (bool, error) {
	if len(key) != 6 {
		return false, nfc.Errorf(nfc.ErrCodeInvalidData, "AuthenticateSector", "key must be 6 bytes, got %d", len(key))
	}
	var keyArray [6]byte
	copy(keyArray[:], key)

	keyType := int(freefare.KeyA)
	if keyB {
		keyType = int(freefare.KeyB)
	}

	trailer := freefare.ClassicSectorLastBlock(byte(sector))
	if err := c.tag.Authenticate(trailer, keyArray, keyType); err == nil {
		return true, nil
	}

	c.tag.Disconnect()
	if err := c.tag.Connect(); err != nil {
		return false, nfc.NewCardRemovedError(err)
	}
	return false, nil
}

func (c *freefareClassic) ReadBlock(block int) ([]byte, error) {
	data, err := c.tag.ReadBlock(byte(block))
	if err != nil {
		return nil, nfc.NewReadError(fmt.Sprintf("ReadBlock(%d)", block), err)
	}
	return data[:], nil
}

// freefareUltralight implements nfc.UltralightTag on top of libfreefare.
type freefareUltralight struct {
	tag      freefare.UltralightTag
	uid      []byte
	detected nfc.DetectedTagType
}

func newFreefareUltralight(tag freefare.UltralightTag, uid []byte) *freefareUltralight {
	detected := nfc.DetectedUltralight
	if tag.Type() == freefare.UltralightC {
		detected = nfc.DetectedUltralightC
	}
	return &freefareUltralight{tag: tag, uid: uid, detected: detected}
}

func (u *freefareUltralight) ID() []byte                 { return u.uid }
func (u *freefareUltralight) Technology() nfc.Technology { return nfc.TechUltralight }
func (u *freefareUltralight) Connect() error             { return u.tag.Connect() }
func (u *freefareUltralight) Close() error               { return u.tag.Disconnect() }
func (u *freefareUltralight) PageCount() int             { return nfc.UltralightPageCount(u.detected) }

func (u *freefareUltralight) ReadPages(page int) ([]byte, error) {
	out := make([]byte, 0, 16)
	for i := 0; i < 4; i++ {
		data, err := u.tag.ReadPage(byte(page + i))
		if err != nil {
			return nil, nfc.NewReadError(fmt.Sprintf("ReadPage(%d)", page+i), err)
		}
		out = append(out, data[:]...)
	}
	return out, nil
}

// isoDep exchanges APDUs with an ISO14443-4 target selected through libnfc.
type isoDep struct {
	device *device
	uid    []byte
	tech   nfc.Technology
}

func newIsoDep(d *device, uid []byte, tech nfc.Technology) *isoDep {
	return &isoDep{device: d, uid: uid, tech: tech}
}

func (t *isoDep) ID() []byte                 { return t.uid }
func (t *isoDep) Technology() nfc.Technology { return t.tech }

func (t *isoDep) Connect() error {
	if _, err := t.device.dev.InitiatorSelectPassiveTarget(modISO14443A, t.uid); err != nil {
		return nfc.NewChannelError("IsoDep.Connect", err)
	}
	return nil
}

func (t *isoDep) Close() error {
	return t.device.dev.InitiatorDeselectTarget()
}

func (t *isoDep) Transceive(apdu []byte) ([]byte, error) {
	return t.device.transceive(apdu)
}

// felica exchanges FeliCa frames with a target selected through libnfc.
type felica struct {
	device *device
	idm    []byte
	pmm    []byte
}

func newFelica(d *device, idm, pmm []byte) *felica {
	return &felica{
		device: d,
		idm:    append([]byte(nil), idm...),
		pmm:    append([]byte(nil), pmm...),
	}
}

func (t *felica) ID() []byte                 { return t.idm }
func (t *felica) Technology() nfc.Technology { return nfc.TechFelica }
func (t *felica) PMm() []byte                { return t.pmm }

func (t *felica) Connect() error {
	target, err := t.device.dev.InitiatorSelectPassiveTarget(modFelica, felicaPollingPayload)
	if err != nil {
		return nfc.NewChannelError("Felica.Connect", err)
	}
	if ft, ok := target.(*gonfc.FelicaTarget); ok {
		t.pmm = append(t.pmm[:0], ft.Pad[:]...)
	}
	return nil
}

func (t *felica) Close() error {
	return t.device.dev.InitiatorDeselectTarget()
}

func (t *felica) Transceive(frame []byte) ([]byte, error) {
	resp, err := t.device.transceive(nfc.FelicaFrame(frame))
	if err != nil {
		return nil, err
	}
	return nfc.StripFelicaLength(resp)
}
