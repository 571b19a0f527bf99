package nfc

import (
	"errors"
	"fmt"
	"testing"
)

func TestNFCError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *NFCError
		expected string
	}{
		{
			name: "with op and message",
			err: &NFCError{
				Code:    ErrCodeProtocol,
				Op:      "GetFileSettings",
				Message: "unknown file type 0x07",
			},
			expected: "GetFileSettings: unknown file type 0x07",
		},
		{
			name: "with op, message, and cause",
			err: &NFCError{
				Code:    ErrCodeReadFailed,
				Op:      "ReadBlock(4)",
				Message: "read failed",
				Cause:   errors.New("NAK"),
			},
			expected: "ReadBlock(4): read failed: NAK",
		},
		{
			name: "message only",
			err: &NFCError{
				Code:    ErrCodeNotFound,
				Message: "file not found",
			},
			expected: "file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("NFCError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNFCError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewReadError("ReadBlock(1)", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("NFCError.Unwrap() = %v, want %v", unwrapped, cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if !err.Is(&NFCError{Code: ErrCodeReadFailed}) {
		t.Error("NFCError.Is() should return true for same code")
	}
	if err.Is(&NFCError{Code: ErrCodeProtocol}) {
		t.Error("NFCError.Is() should return false for different code")
	}
	if err.Is(errors.New("not an NFCError")) {
		t.Error("NFCError.Is() should return false for non-NFCError")
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *NFCError
		code ErrorCode
	}{
		{"not supported", NewNotSupportedError("Transceive"), ErrCodeNotSupported},
		{"channel", NewChannelError("Transceive", cause), ErrCodeChannel},
		{"auth", NewAuthError("LoadKey", "04A1B2C3", cause), ErrCodeAuthFailed},
		{"read", NewReadError("ReadBlock", cause), ErrCodeReadFailed},
		{"transceive", NewTransceiveError("Transceive", cause), ErrCodeTransceiveFailed},
		{"protocol", NewProtocolError("DESFire", "unknown status %02X", 0x1C), ErrCodeProtocol},
		{"not found", NewNotFoundError("SelectApplication", "application not found"), ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if GetErrorCode(fmt.Errorf("wrapped: %w", tt.err)) != tt.code {
				t.Errorf("GetErrorCode through wrapping lost code %v", tt.code)
			}
		})
	}

	if msg := NewProtocolError("DESFire", "unknown status %02X", 0x1C).Message; msg != "unknown status 1C" {
		t.Errorf("protocol message = %q", msg)
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		auth      bool
		protocol  bool
		notFound  bool
		channel   bool
		supported bool
	}{
		{name: "nil"},
		{name: "plain error", err: errors.New("x")},
		{name: "auth", err: NewAuthError("op", "", nil), auth: true},
		{name: "wrapped protocol", err: fmt.Errorf("ctx: %w", NewProtocolError("op", "bad")), protocol: true},
		{name: "not found", err: NewNotFoundError("op", "missing"), notFound: true},
		{name: "channel code", err: NewChannelError("op", errors.New("usb")), channel: true},
		{name: "tag removed code", err: &NFCError{Code: ErrCodeTagRemoved}, channel: true},
		{name: "card removed", err: NewCardRemovedError(errors.New("gone")), channel: true},
		{name: "device closed", err: fmt.Errorf("poll: %w", ErrDeviceClosed), channel: true},
		{name: "io sentinel", err: ErrIO, channel: true},
		{name: "timeout sentinel", err: ErrTimeout, channel: true},
		{name: "read failure is not channel", err: NewReadError("op", errors.New("NAK"))},
		{name: "not supported", err: NewNotSupportedError("op"), supported: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.auth {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.auth)
			}
			if got := IsProtocolError(tt.err); got != tt.protocol {
				t.Errorf("IsProtocolError() = %v, want %v", got, tt.protocol)
			}
			if got := IsNotFoundError(tt.err); got != tt.notFound {
				t.Errorf("IsNotFoundError() = %v, want %v", got, tt.notFound)
			}
			if got := IsChannelError(tt.err); got != tt.channel {
				t.Errorf("IsChannelError() = %v, want %v", got, tt.channel)
			}
			if got := IsNotSupportedError(tt.err); got != tt.supported {
				t.Errorf("IsNotSupportedError() = %v, want %v", got, tt.supported)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if code := GetErrorCode(errors.New("plain")); code != 0 {
		t.Errorf("GetErrorCode(plain) = %v, want 0", code)
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewAuthError("Authenticate", "04A1B2C3", nil))

	var nfcErr *NFCError
	if !errors.As(err, &nfcErr) {
		t.Fatal("errors.As should find NFCError")
	}
	if nfcErr.TagUID != "04A1B2C3" {
		t.Errorf("TagUID = %q, want %q", nfcErr.TagUID, "04A1B2C3")
	}
}

func TestWrapErrorAndErrorf(t *testing.T) {
	cause := errors.New("original")
	err := WrapError(ErrCodeInvalidData, "Decode", "bad frame", cause)
	if err.Code != ErrCodeInvalidData || err.Cause != cause {
		t.Errorf("WrapError() = %+v", err)
	}

	err = Errorf(ErrCodeTagNotConnected, "ReadBlock", "block %d", 7)
	if err.Message != "block 7" {
		t.Errorf("Errorf message = %q, want %q", err.Message, "block 7")
	}
}
