package nfc

// Device represents an NFC reader hardware device.
//
// A Device is obtained from a Manager and reports the tags currently in its field.
//
// Example:
//
//	manager, _ := hardware.NewManager(nfc.BackendAuto, nil)
//	device, err := manager.OpenDevice("")
//	defer device.Close()
type Device interface {
	Close() error
	String() string
	// Tags returns the tags in the field. No tag is reported as nil, nil.
	Tags() ([]Tag, error)
}
