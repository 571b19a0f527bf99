package nfc

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNoCardError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "typed noCardError",
			err:      NewNoCardError("ACR122U"),
			expected: true,
		},
		{
			name:     "wrapped noCardError",
			err:      fmt.Errorf("failed: %w", NewNoCardError("ACR122U")),
			expected: true,
		},
		{
			name:     "string match - No smart card (uppercase)",
			err:      errors.New("scard: No smart card inserted"),
			expected: true,
		},
		{
			name:     "string match - card is not present",
			err:      errors.New("Card is not present"),
			expected: true,
		},
		{
			name:     "unrelated error",
			err:      errors.New("connection lost"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNoCardError(tt.err); got != tt.expected {
				t.Errorf("IsNoCardError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCardRemovedError(t *testing.T) {
	cause := errors.New("SCARD_W_REMOVED_CARD")
	err := NewCardRemovedError(cause)

	if got := err.Error(); got != "card was removed: SCARD_W_REMOVED_CARD" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewCardRemovedError(nil).Error(); got != "card was removed" {
		t.Errorf("Error() without cause = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("cardRemovedError should unwrap to its cause")
	}
	if !IsCardRemovedError(fmt.Errorf("read sector 3: %w", err)) {
		t.Error("IsCardRemovedError should see through wrapping")
	}
	if IsCardRemovedError(cause) {
		t.Error("IsCardRemovedError should not match a plain error")
	}
}

func TestUnsupportedTagError(t *testing.T) {
	err := NewUnsupportedTagError("ATR 3B8F8001")

	if got := err.Error(); got != "unsupported tag technology (ATR 3B8F8001)" {
		t.Errorf("Error() = %q", got)
	}
	if !IsUnsupportedTagError(fmt.Errorf("scan: %w", err)) {
		t.Error("IsUnsupportedTagError should see through wrapping")
	}
	if IsChannelError(err) {
		t.Error("an unsupported tag is not a channel failure")
	}
	if IsUnsupportedTagError(nil) {
		t.Error("nil is not an unsupported tag error")
	}
}

func TestIsTimeoutError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"sentinel", ErrTimeout, true},
		{"wrapped sentinel", fmt.Errorf("poll: %w", ErrTimeout), true},
		{"libnfc message", errors.New("Operation timed out"), true},
		{"other", errors.New("bad frame"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeoutError(tt.err); got != tt.expected {
				t.Errorf("IsTimeoutError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsIOError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"sentinel", ErrIO, true},
		{"libnfc message", errors.New("libnfc: input / output error"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"other", errors.New("bad frame"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIOError(tt.err); got != tt.expected {
				t.Errorf("IsIOError() = %v, want %v", got, tt.expected)
			}
		})
	}
}
