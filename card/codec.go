package card

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FormatVersion is the version written by Marshal. Unmarshal accepts any
// version from 1 up to it.
const FormatVersion = 1

// ErrUnsupportedVersion is returned for envelopes written by a newer release.
var ErrUnsupportedVersion = errors.New("unsupported raw card format version")

type envelope struct {
	Version  int             `json:"version"`
	CardType CardType        `json:"cardType"`
	Card     json.RawMessage `json:"card"`
}

// Marshal encodes a raw card into the versioned JSON envelope. Byte fields
// are base64.
func Marshal(raw RawCard) ([]byte, error) {
	if raw == nil {
		return nil, fmt.Errorf("marshal raw card: nil card")
	}

	var body []byte
	var err error
	switch c := raw.(type) {
	case *RawClassicCard:
		body, err = json.Marshal(c)
	case *RawUltralightCard:
		body, err = json.Marshal(c)
	case *RawDesfireCard:
		body, err = json.Marshal(c)
	case *RawCEPASCard:
		body, err = json.Marshal(c)
	case *RawFelicaCard:
		body, err = json.Marshal(c)
	default:
		return nil, fmt.Errorf("marshal raw card: unexpected type %T", raw)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s card: %w", raw.CardType(), err)
	}

	return json.Marshal(envelope{
		Version:  FormatVersion,
		CardType: raw.CardType(),
		Card:     body,
	})
}

// MarshalIndent is Marshal with indentation, for files meant to be read by people.
func MarshalIndent(raw RawCard) ([]byte, error) {
	data, err := Marshal(raw)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return json.MarshalIndent(out, "", "  ")
}

// Unmarshal decodes an envelope written by Marshal.
func Unmarshal(data []byte) (RawCard, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode raw card envelope: %w", err)
	}
	if env.Version < 1 || env.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if len(env.Card) == 0 {
		return nil, fmt.Errorf("decode raw card: missing card body")
	}

	var raw RawCard
	switch env.CardType {
	case TypeClassic:
		raw = &RawClassicCard{}
	case TypeUltralight:
		raw = &RawUltralightCard{}
	case TypeDesfire:
		raw = &RawDesfireCard{}
	case TypeCEPAS:
		raw = &RawCEPASCard{}
	case TypeFelica:
		raw = &RawFelicaCard{}
	default:
		return nil, fmt.Errorf("decode raw card: unknown card type %d", int(env.CardType))
	}

	if err := json.Unmarshal(env.Card, raw); err != nil {
		return nil, fmt.Errorf("decode %s card: %w", env.CardType, err)
	}
	return raw, nil
}
