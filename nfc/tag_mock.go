package nfc

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// mockBase holds the state shared by every mock tag.
type mockBase struct {
	// TagID is the identifier returned by ID()
	TagID []byte

	// ConnectError, if set, will be returned by Connect()
	ConnectError error

	// IsConnected tracks whether the tag is currently connected
	IsConnected bool

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

func (m *mockBase) ID() []byte {
	return m.TagID
}

func (m *mockBase) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Connect")
	if m.ConnectError != nil {
		return m.ConnectError
	}
	m.IsConnected = true
	return nil
}

func (m *mockBase) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")
	m.IsConnected = false
	return nil
}

func (m *mockBase) record(call string) {
	m.CallLog = append(m.CallLog, call)
}

// Calls returns a copy of the call log.
func (m *mockBase) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// CountCalls returns how many logged calls start with prefix.
func (m *mockBase) CountCalls(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.CallLog {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// MockClassicTag simulates a MIFARE Classic card.
//
// Example:
//
//	tag := NewMockClassicTag([]byte{0x01, 0x02, 0x03, 0x04}, 16)
//	tag.KeysA[1] = []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
//	tag.Blocks[4] = make([]byte, 16)
type MockClassicTag struct {
	mockBase

	// Sectors is the number of sectors returned by SectorCount()
	Sectors int

	// KeysA and KeysB hold the accepted key per sector. A sector missing
	// from both maps rejects every key.
	KeysA map[int][]byte
	KeysB map[int][]byte

	// Blocks holds block contents; a missing block reads as 16 zero bytes
	Blocks map[int][]byte

	// AuthFunc, if set, replaces the key map lookup
	AuthFunc func(sector int, key []byte, keyB bool) (bool, error)

	// ReadBlockFunc, if set, replaces the Blocks lookup
	ReadBlockFunc func(block int) ([]byte, error)
}

// NewMockClassicTag creates a Classic mock with the given sector count.
func NewMockClassicTag(id []byte, sectors int) *MockClassicTag {
	return &MockClassicTag{
		mockBase: mockBase{TagID: id, CallLog: make([]string, 0)},
		Sectors:  sectors,
		KeysA:    make(map[int][]byte),
		KeysB:    make(map[int][]byte),
		Blocks:   make(map[int][]byte),
	}
}

func (m *MockClassicTag) Technology() Technology { return TechClassic }

func (m *MockClassicTag) SectorCount() int { return m.Sectors }

func (m *MockClassicTag) BlockCountInSector(sector int) int { return ClassicBlockCountInSector(sector) }

func (m *MockClassicTag) SectorToBlock(sector int) int { return ClassicSectorToBlock(sector) }

// AuthenticateSector logs "Authenticate(<sector>,<A|B>,<key hex>)".
func (m *MockClassicTag) AuthenticateSector(sector int, key []byte, keyB bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keyType := "A"
	if keyB {
		keyType = "B"
	}
	m.record(fmt.Sprintf("Authenticate(%d,%s,%s)", sector, keyType, BytesToHex(key)))

	if !m.IsConnected {
		return false, Errorf(ErrCodeTagNotConnected, "AuthenticateSector", "tag not connected")
	}
	if m.AuthFunc != nil {
		return m.AuthFunc(sector, key, keyB)
	}

	accepted := m.KeysA
	if keyB {
		accepted = m.KeysB
	}
	want, ok := accepted[sector]
	return ok && bytes.Equal(want, key), nil
}

// ReadBlock logs "ReadBlock(<block>)".
func (m *MockClassicTag) ReadBlock(block int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(fmt.Sprintf("ReadBlock(%d)", block))

	if !m.IsConnected {
		return nil, Errorf(ErrCodeTagNotConnected, "ReadBlock", "tag not connected")
	}
	if m.ReadBlockFunc != nil {
		return m.ReadBlockFunc(block)
	}
	if data, ok := m.Blocks[block]; ok {
		return append([]byte(nil), data...), nil
	}
	return make([]byte, ClassicBlockSize), nil
}

// MockIsoDepTag simulates an ISO14443-4 card. Responses are keyed by the
// uppercase hex of the command APDU.
type MockIsoDepTag struct {
	mockBase

	// Tech is returned by Technology(); it defaults to TechISODep
	Tech Technology

	// Responses maps command hex to the full response, status word included
	Responses map[string][]byte

	// DefaultResponse is returned for commands missing from Responses.
	// Nil means the command fails with a transceive error.
	DefaultResponse []byte

	// TransceiveFunc, if set, replaces the Responses lookup
	TransceiveFunc func([]byte) ([]byte, error)
}

// NewMockIsoDepTag creates an ISO-DEP mock.
func NewMockIsoDepTag(id []byte) *MockIsoDepTag {
	return &MockIsoDepTag{
		mockBase:  mockBase{TagID: id, CallLog: make([]string, 0)},
		Tech:      TechISODep,
		Responses: make(map[string][]byte),
	}
}

func (m *MockIsoDepTag) Technology() Technology {
	if m.Tech == TechUnknown {
		return TechISODep
	}
	return m.Tech
}

// Transceive logs "Transceive(<apdu hex>)".
func (m *MockIsoDepTag) Transceive(apdu []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := BytesToHex(apdu)
	m.record("Transceive(" + cmd + ")")

	if !m.IsConnected {
		return nil, Errorf(ErrCodeTagNotConnected, "Transceive", "tag not connected")
	}
	if m.TransceiveFunc != nil {
		return m.TransceiveFunc(apdu)
	}
	if resp, ok := m.Responses[cmd]; ok {
		return resp, nil
	}
	if m.DefaultResponse != nil {
		return m.DefaultResponse, nil
	}
	return nil, NewTransceiveError("Transceive", fmt.Errorf("no mock response for %s", cmd))
}

// MockFelicaTag simulates a FeliCa card. Responses are keyed by the uppercase
// hex of the frame, without the length byte.
type MockFelicaTag struct {
	mockBase

	// PMmBytes is returned by PMm()
	PMmBytes []byte

	// Responses maps frame hex to the response frame
	Responses map[string][]byte

	// TransceiveFunc, if set, replaces the Responses lookup
	TransceiveFunc func([]byte) ([]byte, error)
}

// NewMockFelicaTag creates a FeliCa mock with the given IDm.
func NewMockFelicaTag(idm []byte) *MockFelicaTag {
	return &MockFelicaTag{
		mockBase:  mockBase{TagID: idm, CallLog: make([]string, 0)},
		Responses: make(map[string][]byte),
	}
}

func (m *MockFelicaTag) Technology() Technology { return TechFelica }

func (m *MockFelicaTag) PMm() []byte { return m.PMmBytes }

// Transceive logs "Transceive(<frame hex>)". A frame with no response yields
// nil, nil, which is how a card that stays silent looks to the reader.
func (m *MockFelicaTag) Transceive(frame []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := BytesToHex(frame)
	m.record("Transceive(" + cmd + ")")

	if !m.IsConnected {
		return nil, Errorf(ErrCodeTagNotConnected, "Transceive", "tag not connected")
	}
	if m.TransceiveFunc != nil {
		return m.TransceiveFunc(frame)
	}
	return m.Responses[cmd], nil
}

// MockUltralightTag simulates a MIFARE Ultralight card backed by a flat page buffer.
type MockUltralightTag struct {
	mockBase

	// Pages holds 4 bytes per page
	Pages []byte

	// FailAt makes ReadPages fail for any read that starts at or after this
	// page. Zero disables it.
	FailAt int
}

// NewMockUltralightTag creates an Ultralight mock over pages.
func NewMockUltralightTag(id []byte, pages []byte) *MockUltralightTag {
	return &MockUltralightTag{
		mockBase: mockBase{TagID: id, CallLog: make([]string, 0)},
		Pages:    pages,
	}
}

func (m *MockUltralightTag) Technology() Technology { return TechUltralight }

func (m *MockUltralightTag) PageCount() int { return len(m.Pages) / 4 }

// ReadPages logs "ReadPages(<page>)". Reads past the end wrap to page 0,
// matching the behaviour of real Ultralight cards.
func (m *MockUltralightTag) ReadPages(page int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(fmt.Sprintf("ReadPages(%d)", page))

	if !m.IsConnected {
		return nil, Errorf(ErrCodeTagNotConnected, "ReadPages", "tag not connected")
	}
	if m.FailAt > 0 && page >= m.FailAt {
		return nil, NewReadError(fmt.Sprintf("ReadPages(%d)", page), fmt.Errorf("NAK"))
	}
	count := len(m.Pages) / 4
	out := make([]byte, 0, 16)
	for i := 0; i < 4; i++ {
		p := (page + i) % count
		out = append(out, m.Pages[p*4:p*4+4]...)
	}
	return out, nil
}
