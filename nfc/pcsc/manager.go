// Package pcsc reads tags through PC/SC readers using ebfe/scard.
package pcsc

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"

	"github.com/nedpals/davi-transit/nfc"
)

// Manager implements nfc.Manager over the PC/SC service.
type Manager struct {
	ctx   *scard.Context
	ctxMu sync.Mutex
}

// NewManager creates a PC/SC manager. The PC/SC context is established on
// first use.
func NewManager() *Manager {
	return &Manager{}
}

// ensureContext ensures we have a valid PC/SC context
func (m *Manager) ensureContext() (*scard.Context, error) {
	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()

	if m.ctx != nil {
		// Check if context is still valid by listing readers
		if _, err := m.ctx.ListReaders(); err == nil {
			return m.ctx, nil
		}
		m.ctx.Release()
		m.ctx = nil
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}
	m.ctx = ctx
	return ctx, nil
}

// OpenDevice opens a reader. The card itself is connected lazily by Tags.
func (m *Manager) OpenDevice(deviceStr string) (nfc.Device, error) {
	ctx, err := m.ensureContext()
	if err != nil {
		return nil, err
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}
	readers = filterContactlessReaders(readers)
	if len(readers) == 0 {
		return nil, nfc.ErrNoDevice
	}

	readerName := deviceStr
	if readerName == "" {
		readerName = readers[0]
	} else if !slices.Contains(readers, readerName) {
		return nil, fmt.Errorf("PC/SC reader %q not found: %w", readerName, nfc.ErrNoDevice)
	}

	return newDevice(ctx, readerName), nil
}

// ListDevices lists available PC/SC readers
func (m *Manager) ListDevices() ([]string, error) {
	var lastErr error

	for i := 0; i < nfc.DeviceEnumRetries; i++ {
		ctx, err := m.ensureContext()
		if err != nil {
			lastErr = err
			time.Sleep(time.Millisecond * 100)
			continue
		}

		readers, err := ctx.ListReaders()
		if err != nil {
			lastErr = err
			time.Sleep(time.Millisecond * 100)
			continue
		}

		return filterContactlessReaders(readers), nil
	}

	return nil, fmt.Errorf("failed to list PC/SC readers after %d retries: %w", nfc.DeviceEnumRetries, lastErr)
}

// Release releases the PC/SC context
func (m *Manager) Release() error {
	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()

	if m.ctx != nil {
		err := m.ctx.Release()
		m.ctx = nil
		return err
	}
	return nil
}

// readerContainsPattern checks if reader name contains common NFC reader patterns
func readerContainsPattern(name string) bool {
	patterns := []string{
		"ACR", "ACS", "NFC", "PICC", "Contactless",
		"SCL", "HID", "Identiv", "Sony", "RC-S",
	}
	upperName := strings.ToUpper(name)
	for _, p := range patterns {
		if strings.Contains(upperName, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// filterContactlessReaders drops SAM slots and prefers readers that look contactless.
// When no reader matches a known pattern every non-SAM reader is kept.
func filterContactlessReaders(readers []string) []string {
	var matched, rest []string
	for _, r := range readers {
		if strings.Contains(strings.ToUpper(r), "SAM") {
			continue
		}
		if readerContainsPattern(r) {
			matched = append(matched, r)
		} else {
			rest = append(rest, r)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return rest
}
