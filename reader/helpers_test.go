package reader

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-transit/nfc"
)

var fixedNow = time.Date(2024, time.June, 1, 9, 30, 0, 0, time.UTC)

func testOptions() Options {
	return Options{Now: func() time.Time { return fixedNow }}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// scriptIsoDep makes tag answer each command with its responses in turn; the
// last response repeats. Commands missing from script get fallback, or a
// transceive error when fallback is empty.
func scriptIsoDep(t *testing.T, tag *nfc.MockIsoDepTag, script map[string][]string, fallback string) {
	t.Helper()
	queues := make(map[string][][]byte, len(script))
	for cmd, resps := range script {
		key := strings.ToUpper(strings.ReplaceAll(cmd, " ", ""))
		for _, r := range resps {
			queues[key] = append(queues[key], mustHex(t, r))
		}
	}
	var fb []byte
	if fallback != "" {
		fb = mustHex(t, fallback)
	}

	tag.TransceiveFunc = func(apdu []byte) ([]byte, error) {
		cmd := nfc.BytesToHex(apdu)
		q, ok := queues[cmd]
		if !ok {
			if fb != nil {
				return fb, nil
			}
			return nil, nfc.NewTransceiveError("Transceive", nil)
		}
		resp := q[0]
		if len(q) > 1 {
			queues[cmd] = q[1:]
		}
		return resp, nil
	}
}

func repeatHex(s string, n int) string {
	return strings.Repeat(s, n)
}
