// Package libnfc reads tags through libnfc and libfreefare.
package libnfc

import (
	"fmt"
	"time"

	gonfc "github.com/clausecker/nfc/v2"
	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/nfc"
)

// Manager implements nfc.Manager using libnfc and freefare libraries.
type Manager struct {
	logger *zap.Logger
}

// NewManager creates a libnfc manager. A nil logger disables diagnostics.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

func (m *Manager) OpenDevice(deviceStr string) (nfc.Device, error) {
	dev, err := gonfc.Open(deviceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open libnfc device %q: %w", deviceStr, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to initialize libnfc device %q: %w", deviceStr, err)
	}
	return newDevice(dev, m.logger), nil
}

func (m *Manager) ListDevices() ([]string, error) {
	var devices []string
	var err error
	for i := 0; i < nfc.DeviceEnumRetries; i++ {
		devices, err = gonfc.ListDevices()
		if err == nil {
			return devices, nil
		}
		time.Sleep(time.Millisecond * 100)
	}
	return nil, fmt.Errorf("failed to list NFC devices after %d retries: %w", nfc.DeviceEnumRetries, err)
}
