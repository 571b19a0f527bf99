// Package hardware picks the NFC back end that talks to real readers.
package hardware

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/nfc"
	"github.com/nedpals/davi-transit/nfc/libnfc"
	"github.com/nedpals/davi-transit/nfc/pcsc"
)

// NewManager creates a Manager for the named back end. nfc.BackendAuto
// prefers PC/SC and falls back to libnfc when no PC/SC reader is attached.
// A nil logger disables back end diagnostics.
func NewManager(backend string, logger *zap.Logger) (nfc.Manager, error) {
	switch backend {
	case nfc.BackendPCSC:
		return pcsc.NewManager(), nil
	case nfc.BackendLibNFC:
		return libnfc.NewManager(logger), nil
	case nfc.BackendAuto, "":
		return NewAuto(pcsc.NewManager(), libnfc.NewManager(logger)), nil
	default:
		return nil, fmt.Errorf("unknown NFC backend %q", backend)
	}
}

// Auto tries its primary manager first and the fallback second.
type Auto struct {
	primary  nfc.Manager
	fallback nfc.Manager
}

func NewAuto(primary, fallback nfc.Manager) *Auto {
	return &Auto{primary: primary, fallback: fallback}
}

func (m *Auto) ListDevices() ([]string, error) {
	devices, err := m.primary.ListDevices()
	if err == nil && len(devices) > 0 {
		return devices, nil
	}
	return m.fallback.ListDevices()
}

func (m *Auto) OpenDevice(deviceStr string) (nfc.Device, error) {
	dev, err := m.primary.OpenDevice(deviceStr)
	if err == nil {
		return dev, nil
	}
	fallbackDev, fallbackErr := m.fallback.OpenDevice(deviceStr)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%v; %w", err, fallbackErr)
	}
	return fallbackDev, nil
}
