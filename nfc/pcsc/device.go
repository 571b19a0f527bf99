package pcsc

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ebfe/scard"

	"github.com/nedpals/davi-transit/nfc"
)

// device implements nfc.Device for one PC/SC reader slot.
type device struct {
	ctx        *scard.Context
	readerName string

	mu   sync.Mutex
	card *scard.Card
	uid  []byte
	atr  []byte
	tag  nfc.Tag

	// Background monitoring for card removal
	stopMonitor chan struct{}
	cardRemoved chan struct{}
}

func newDevice(ctx *scard.Context, readerName string) *device {
	return &device{ctx: ctx, readerName: readerName}
}

func (d *device) String() string {
	return d.readerName
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnectLocked()
}

func (d *device) disconnectLocked() error {
	d.stopMonitorLocked()
	d.tag = nil
	d.uid = nil
	d.atr = nil
	if d.card != nil {
		err := d.card.Disconnect(scard.LeaveCard)
		d.card = nil
		return err
	}
	return nil
}

// Tags connects to the card in the reader, if any, and wraps it in the tag type
// matching its ATR. The same Tag is returned for as long as the card stays.
func (d *device) Tags() ([]nfc.Tag, error) {
	if d.removedByMonitor() {
		d.mu.Lock()
		d.disconnectLocked()
		d.mu.Unlock()
	}

	present, err := d.isCardPresent()
	if err != nil {
		return nil, fmt.Errorf("failed to check card presence: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !present {
		d.disconnectLocked()
		return nil, nil
	}
	if d.tag != nil {
		return []nfc.Tag{d.tag}, nil
	}

	card, err := d.ctx.Connect(d.readerName, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		if nfc.IsNoCardError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to connect to reader %s: %w", d.readerName, err)
	}

	// The scard library panics on an invalid protocol
	proto := card.ActiveProtocol()
	if proto != scard.ProtocolT0 && proto != scard.ProtocolT1 {
		card.Disconnect(scard.LeaveCard)
		return nil, fmt.Errorf("unsupported card protocol: %d", proto)
	}

	status, err := card.Status()
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		return nil, fmt.Errorf("failed to get card status: %w", err)
	}
	d.card = card
	d.atr = status.Atr

	uid, err := d.getUIDLocked()
	if err != nil {
		d.disconnectLocked()
		return nil, fmt.Errorf("failed to get UID: %w", err)
	}
	d.uid = uid

	detected := nfc.DetectTagTypeFromATR(d.atr)
	switch detected.Technology() {
	case nfc.TechClassic:
		d.tag = newClassicTag(d, uid, detected)
	case nfc.TechUltralight:
		d.tag = newUltralightTag(d, uid, detected)
	case nfc.TechISODep, nfc.TechDESFire:
		d.tag = newIsoDepTag(d, uid)
	case nfc.TechFelica:
		d.tag = newFelicaTag(d, uid)
	default:
		atr := nfc.BytesToHex(d.atr)
		d.disconnectLocked()
		return nil, nfc.NewUnsupportedTagError("ATR " + atr)
	}

	d.startCardMonitor()
	return []nfc.Tag{d.tag}, nil
}

// isCardPresent checks the reader state without waiting.
func (d *device) isCardPresent() (bool, error) {
	readerStates := []scard.ReaderState{
		{Reader: d.readerName, CurrentState: scard.StateUnaware},
	}
	if err := d.ctx.GetStatusChange(readerStates, 0); err != nil {
		// Timeout means no state change; the current state is still filled in
		if !errors.Is(err, scard.ErrTimeout) && !strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return false, err
		}
	}
	return readerStates[0].EventState&scard.StatePresent != 0, nil
}

// startCardMonitor starts a background goroutine that watches for card removal.
func (d *device) startCardMonitor() {
	d.stopMonitor = make(chan struct{})
	d.cardRemoved = make(chan struct{}, 1)
	stop, removed := d.stopMonitor, d.cardRemoved
	ctx, reader := d.ctx, d.readerName

	go func() {
		readerStates := []scard.ReaderState{
			{Reader: reader, CurrentState: scard.StateUnaware},
		}
		for {
			select {
			case <-stop:
				return
			default:
			}

			// The timeout lets the loop observe stop
			err := ctx.GetStatusChange(readerStates, 500)
			if err != nil {
				if errors.Is(err, scard.ErrCancelled) {
					return
				}
				if errors.Is(err, scard.ErrTimeout) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
					continue
				}
				// Other errors usually mean the reader is gone
				signal(removed)
				return
			}

			eventState := readerStates[0].EventState
			// StateEmpty is the only reliable removal indicator
			if eventState&scard.StateEmpty != 0 {
				signal(removed)
				return
			}
			readerStates[0].CurrentState = eventState & ^scard.StateChanged
		}
	}()
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// stopMonitorLocked stops the removal monitor. Caller holds d.mu.
func (d *device) stopMonitorLocked() {
	if d.stopMonitor != nil {
		close(d.stopMonitor)
		d.stopMonitor = nil
	}
	d.cardRemoved = nil
}

func (d *device) removedByMonitor() bool {
	d.mu.Lock()
	removed := d.cardRemoved
	d.mu.Unlock()
	if removed == nil {
		return false
	}
	select {
	case <-removed:
		return true
	default:
		return false
	}
}

// Transceive sends an APDU to the card and returns the raw response.
// Card removal is reported as a card removed error.
func (d *device) Transceive(txData []byte) ([]byte, error) {
	if d.removedByMonitor() {
		return nil, nfc.NewCardRemovedError(fmt.Errorf("card removed (detected by monitor)"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.card == nil {
		return nil, nfc.NewCardRemovedError(fmt.Errorf("device not connected"))
	}

	// The scard library panics on an invalid protocol
	proto := d.card.ActiveProtocol()
	if proto != scard.ProtocolT0 && proto != scard.ProtocolT1 {
		return nil, nfc.NewCardRemovedError(fmt.Errorf("invalid card protocol"))
	}

	rxData, err := d.card.Transmit(txData)
	if err != nil {
		if isCardRemovedError(err) {
			return nil, nfc.NewCardRemovedError(err)
		}
		return nil, nfc.NewChannelError("pcsc.Transceive", err)
	}
	return rxData, nil
}

// isCardRemovedError checks if a PC/SC error indicates the card was removed.
// Uses typed error checking first, with string matching fallback.
func isCardRemovedError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrResetCard) ||
		errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrUnpoweredCard) {
		return true
	}

	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "removed") ||
		strings.Contains(errLower, "reset") ||
		strings.Contains(errLower, "unpowered") ||
		strings.Contains(errLower, "no smart card") ||
		strings.Contains(errLower, "not transacted")
}

// getUIDLocked retrieves the card UID using GET UID APDU. Caller holds d.mu.
func (d *device) getUIDLocked() ([]byte, error) {
	resp, err := d.card.Transmit(nfc.GetUIDAPDU())
	if err != nil {
		return nil, fmt.Errorf("GET UID failed: %w", err)
	}

	parsed, err := nfc.ParseAPDUResponse(resp)
	if err != nil {
		return nil, err
	}
	if !parsed.IsSuccess() {
		return nil, parsed.Error()
	}
	return parsed.Data, nil
}
