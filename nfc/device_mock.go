package nfc

import (
	"fmt"
	"sync"
)

// MockDevice is a test implementation of Device that simulates NFC hardware.
//
// Example:
//
//	mock := NewMockDevice()
//	mock.TagList = []Tag{NewMockClassicTag([]byte{1, 2, 3, 4}, 16)}
//	tags, _ := mock.Tags()
type MockDevice struct {
	// DeviceName is the simulated device name returned by String()
	DeviceName string

	// IsOpen tracks whether the device is currently open
	IsOpen bool

	// CloseError, if set, will be returned by Close()
	CloseError error

	// TagsFunc allows custom Tags behavior for testing
	// If nil, returns TagList or TagsError
	TagsFunc func() ([]Tag, error)

	// TagList is the list of tags returned by Tags()
	TagList []Tag

	// TagsError, if set, will be returned by Tags()
	TagsError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockDevice creates a new MockDevice with default values.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		DeviceName: "Mock NFC Reader",
		IsOpen:     true,
		CallLog:    make([]string, 0),
	}
}

// Close simulates closing the device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")

	if !m.IsOpen {
		return fmt.Errorf("device already closed")
	}
	if m.CloseError != nil {
		return m.CloseError
	}
	m.IsOpen = false
	return nil
}

func (m *MockDevice) String() string {
	return m.DeviceName
}

// Tags simulates polling for tags.
func (m *MockDevice) Tags() ([]Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Tags")

	if !m.IsOpen {
		return nil, ErrDeviceClosed
	}
	if m.TagsFunc != nil {
		return m.TagsFunc()
	}
	if m.TagsError != nil {
		return nil, m.TagsError
	}
	return m.TagList, nil
}

// MockManager is a test implementation of Manager.
//
// Example:
//
//	manager := NewMockManager()
//	devices, _ := manager.ListDevices()
type MockManager struct {
	// DevicesList is the list of device strings returned by ListDevices()
	DevicesList []string

	// ListDevicesError, if set, will be returned by ListDevices()
	ListDevicesError error

	// MockDevice is the device returned by OpenDevice()
	MockDevice *MockDevice

	// OpenDeviceError, if set, will be returned by OpenDevice()
	OpenDeviceError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockManager creates a new MockManager with default values.
func NewMockManager() *MockManager {
	return &MockManager{
		DevicesList: []string{"mock:usb:001"},
		MockDevice:  NewMockDevice(),
		CallLog:     make([]string, 0),
	}
}

// OpenDevice simulates opening an NFC device.
func (m *MockManager) OpenDevice(deviceStr string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, fmt.Sprintf("OpenDevice(%s)", deviceStr))

	if m.OpenDeviceError != nil {
		return nil, m.OpenDeviceError
	}
	if m.MockDevice == nil {
		m.MockDevice = NewMockDevice()
	}
	return m.MockDevice, nil
}

// ListDevices simulates device enumeration.
func (m *MockManager) ListDevices() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "ListDevices")

	if m.ListDevicesError != nil {
		return nil, m.ListDevicesError
	}
	return m.DevicesList, nil
}
