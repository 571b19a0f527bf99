package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Tag operation errors (100-199)
	ErrCodeNotSupported ErrorCode = iota + 100
	ErrCodeTagRemoved
	ErrCodeAuthFailed
	ErrCodeReadFailed
	ErrCodeTransceiveFailed
	ErrCodeTagNotConnected
	ErrCodeInvalidData
	ErrCodeProtocol
	ErrCodeNotFound
	ErrCodeChannel
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "ReadBlock", "Transceive")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotSupported,
		Op:      op,
		Message: "operation not supported",
	}
}

// NewChannelError creates an error for a transport failure that ends the current scan.
func NewChannelError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeChannel,
		Op:      op,
		Message: "channel failure",
		Cause:   cause,
	}
}

// NewAuthError creates an error for authentication failures.
func NewAuthError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeAuthFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "authentication failed",
		Cause:   cause,
	}
}

// NewReadError creates an error for read failures.
func NewReadError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadFailed,
		Op:      op,
		Message: "read failed",
		Cause:   cause,
	}
}

// NewTransceiveError creates an error for transceive failures.
func NewTransceiveError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTransceiveFailed,
		Op:      op,
		Message: "transceive failed",
		Cause:   cause,
	}
}

// NewProtocolError creates an error for a well-formed response the protocol does not allow,
// such as an unknown status byte.
func NewProtocolError(op, format string, args ...interface{}) *NFCError {
	return &NFCError{
		Code:    ErrCodeProtocol,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotFoundError creates an error for a missing application, file or purse.
func NewNotFoundError(op, message string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotFound,
		Op:      op,
		Message: message,
	}
}

// IsNotSupportedError checks if an error indicates an unsupported operation.
func IsNotSupportedError(err error) bool {
	return hasCode(err, ErrCodeNotSupported)
}

// IsAuthError checks if an error indicates authentication failure or a permission denial.
func IsAuthError(err error) bool {
	return hasCode(err, ErrCodeAuthFailed)
}

// IsProtocolError checks if an error is a protocol violation.
func IsProtocolError(err error) bool {
	return hasCode(err, ErrCodeProtocol)
}

// IsNotFoundError checks if an error reports a missing application or file.
func IsNotFoundError(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsChannelError reports whether err means the tag channel is gone: the card was
// removed, the reader disappeared, or the transport failed. Such errors end a scan.
func IsChannelError(err error) bool {
	if err == nil {
		return false
	}
	if IsCardRemovedError(err) {
		return true
	}
	if hasCode(err, ErrCodeChannel) || hasCode(err, ErrCodeTagRemoved) {
		return true
	}
	return errors.Is(err, ErrDeviceClosed) || errors.Is(err, ErrIO) || errors.Is(err, ErrTimeout)
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code == code
	}
	return false
}

// WrapError wraps an existing error with NFC context.
func WrapError(code ErrorCode, op, message string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...interface{}) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}
