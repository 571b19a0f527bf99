package nfc

import (
	"errors"
	"strings"
)

// DeviceEnumRetries is how many times libnfc device enumeration is attempted.
const DeviceEnumRetries = 3

// Sentinel errors for device operations
var (
	// ErrTimeout indicates a timeout occurred during device communication
	ErrTimeout = errors.New("device operation timed out")

	// ErrDeviceClosed indicates the device connection was closed
	ErrDeviceClosed = errors.New("device closed")

	// ErrIO indicates an input/output error with the device
	ErrIO = errors.New("device I/O error")

	// ErrNoDevice indicates no reader could be found
	ErrNoDevice = errors.New("no NFC device found")
)

// noCardError is returned when attempting to connect to a reader with no card present.
// This is a normal condition for NFC readers and should not be treated as a device error.
type noCardError struct {
	ReaderName string
}

func (e *noCardError) Error() string {
	return "no card present in reader " + e.ReaderName
}

// NewNoCardError creates a no card error for the given reader.
func NewNoCardError(readerName string) error {
	return &noCardError{ReaderName: readerName}
}

// IsNoCardError checks if an error indicates no card is present in the reader.
func IsNoCardError(err error) bool {
	if err == nil {
		return false
	}
	var noCard *noCardError
	if errors.As(err, &noCard) {
		return true
	}
	// PC/SC stacks report this condition as plain strings
	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "no card present") ||
		strings.Contains(errLower, "no smart card") ||
		strings.Contains(errLower, "card is not present")
}

// unsupportedTagError is returned when a tag is present but no reader exists for
// its technology. It is terminal: retrying the same tag will not help.
type unsupportedTagError struct {
	Desc string
}

func (e *unsupportedTagError) Error() string {
	return "unsupported tag technology (" + e.Desc + ")"
}

// NewUnsupportedTagError creates an unsupported tag error.
func NewUnsupportedTagError(desc string) error {
	return &unsupportedTagError{Desc: desc}
}

// IsUnsupportedTagError checks if an error indicates the tag type is not supported.
func IsUnsupportedTagError(err error) bool {
	if err == nil {
		return false
	}
	var unsupported *unsupportedTagError
	return errors.As(err, &unsupported)
}

// cardRemovedError indicates the card was removed during operation.
type cardRemovedError struct {
	Cause error
}

func (e *cardRemovedError) Error() string {
	if e.Cause != nil {
		return "card was removed: " + e.Cause.Error()
	}
	return "card was removed"
}

func (e *cardRemovedError) Unwrap() error {
	return e.Cause
}

// NewCardRemovedError creates a card removed error.
func NewCardRemovedError(cause error) error {
	return &cardRemovedError{Cause: cause}
}

// IsCardRemovedError checks if an error indicates the card was removed during operation.
// All card removal errors are created via NewCardRemovedError() at the device layer.
func IsCardRemovedError(err error) bool {
	if err == nil {
		return false
	}
	var cardRemoved *cardRemovedError
	return errors.As(err, &cardRemoved)
}

// IsTimeoutError checks for device timeouts, including libnfc's untyped ones.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Operation timed out") ||
		strings.Contains(errStr, "operation timed out") ||
		strings.Contains(errStr, "timeout")
}

// IsIOError checks for device I/O failures, including libnfc's untyped ones.
func IsIOError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIO) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "input / output error") ||
		strings.Contains(errStr, "Input/output error") ||
		strings.Contains(errStr, "i/o error") ||
		strings.Contains(errStr, "broken pipe")
}
