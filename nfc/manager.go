package nfc

// Back end names accepted by hardware.NewManager.
const (
	BackendAuto   = "auto"
	BackendPCSC   = "pcsc"
	BackendLibNFC = "libnfc"
)

// Manager handles NFC device discovery.
//
// Manager provides methods to list available NFC readers and open connections
// to devices.
//
// Example:
//
//	manager, _ := hardware.NewManager(nfc.BackendPCSC, logger)
//	devices, _ := manager.ListDevices()
//	device, _ := manager.OpenDevice(devices[0])
//	tags, _ := device.Tags()
type Manager interface {
	OpenDevice(deviceStr string) (Device, error)
	ListDevices() ([]string, error)
}
