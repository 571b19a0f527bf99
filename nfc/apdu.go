package nfc

import (
	"errors"
	"fmt"
)

// ISO 7816-4 trailer values.
const (
	SW1Success  = 0x90
	SW2Success  = 0x00
	SW1MoreData = 0x61
)

// Class bytes.
const (
	CLAStandard = 0x00
	CLAPCSC     = 0xFF // reader pseudo-APDUs
	CLADESFire  = 0x90 // native DESFire wrapping, shared by CEPAS
)

// Instruction bytes. All but INSSelectFile are PC/SC reader commands.
const (
	INSGetUID     = 0xCA
	INSLoadKey    = 0x82
	INSAuth       = 0x86
	INSReadBinary = 0xB0
	INSDirectCmd  = 0x00
	INSSelectFile = 0xA4
)

const (
	MIFAREKeyA = 0x60
	MIFAREKeyB = 0x61
)

// APDUResponse is a response split into its payload and trailer.
type APDUResponse struct {
	Data []byte
	SW1  byte
	SW2  byte
}

func (r APDUResponse) IsSuccess() bool {
	return r.SW1 == SW1Success && r.SW2 == SW2Success
}

// HasMoreData reports a 61 xx trailer, where SW2 counts the bytes left.
func (r APDUResponse) HasMoreData() bool {
	return r.SW1 == SW1MoreData
}

func (r APDUResponse) StatusWord() uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// Error is nil for 90 00 and 61 xx trailers.
func (r APDUResponse) Error() error {
	if r.IsSuccess() || r.HasMoreData() {
		return nil
	}
	return fmt.Errorf("card returned status %04X", r.StatusWord())
}

// ParseAPDUResponse splits a raw response into payload and status word.
func ParseAPDUResponse(raw []byte) (APDUResponse, error) {
	if len(raw) < 2 {
		return APDUResponse{}, errors.New("response too short")
	}
	n := len(raw) - 2
	return APDUResponse{Data: raw[:n], SW1: raw[n], SW2: raw[n+1]}, nil
}

// BuildAPDU assembles a short APDU. Lc is omitted for empty data and Le is
// omitted when le is nil.
func BuildAPDU(cla, ins, p1, p2 byte, data []byte, le *byte) []byte {
	cmd := make([]byte, 0, 6+len(data))
	cmd = append(cmd, cla, ins, p1, p2)
	if len(data) > 0 {
		cmd = append(cmd, byte(len(data)))
		cmd = append(cmd, data...)
	}
	if le != nil {
		cmd = append(cmd, *le)
	}
	return cmd
}

// SelectFileAPDU selects an elementary file by its two-byte identifier.
func SelectFileAPDU(fileID uint16) []byte {
	return BuildAPDU(CLAStandard, INSSelectFile, 0x00, 0x00, []byte{byte(fileID >> 8), byte(fileID)}, nil)
}

func GetUIDAPDU() []byte {
	var le byte
	return BuildAPDU(CLAPCSC, INSGetUID, 0x00, 0x00, nil, &le)
}

// LoadKeyAPDU stores a six byte MIFARE key in the reader's key slot. It
// returns nil for keys of any other length.
func LoadKeyAPDU(keySlot byte, key []byte) []byte {
	if len(key) != 6 {
		return nil
	}
	return BuildAPDU(CLAPCSC, INSLoadKey, 0x00, keySlot, key, nil)
}

// MIFAREAuthAPDU authenticates block with the key held in keySlot.
func MIFAREAuthAPDU(block, keyType, keySlot byte) []byte {
	return BuildAPDU(CLAPCSC, INSAuth, 0x00, 0x00, []byte{0x01, 0x00, block, keyType, keySlot}, nil)
}

// ReadBinaryAPDU reads length bytes starting at a block or page number.
func ReadBinaryAPDU(offset, length byte) []byte {
	return BuildAPDU(CLAPCSC, INSReadBinary, 0x00, offset, nil, &length)
}

// DirectTransmitAPDU passes a native frame through the reader untouched.
func DirectTransmitAPDU(cmd []byte) []byte {
	var le byte
	return BuildAPDU(CLAPCSC, INSDirectCmd, 0x00, 0x00, cmd, &le)
}

// Native DESFire instructions.
const (
	DFCmdGetVersion        = 0x60
	DFCmdSelectApplication = 0x5A
	DFCmdGetApplicationIDs = 0x6A
	DFCmdGetFileIDs        = 0x6F
	DFCmdGetFileSettings   = 0xF5
	DFCmdReadData          = 0xBD
	DFCmdReadRecords       = 0xBB
	DFCmdGetValue          = 0x6C
	DFCmdAdditionalFrame   = 0xAF
)

// DESFire answers with SW1 = DFSW1 and its own status in SW2.
const (
	DFSW1                      = 0x91
	DFStatusOK                 = 0x00
	DFStatusPermissionDenied   = 0x9D
	DFStatusAuthenticationErr  = 0xAE
	DFStatusApplicationMissing = 0xA0
	DFStatusFileNotFound       = 0xF0
	DFStatusAdditionalFrame    = 0xAF
)

// DESFireWrapAPDU wraps a native DESFire command as 90 cmd 00 00 [lc data] 00.
func DESFireWrapAPDU(cmd byte, data []byte) []byte {
	var le byte
	return BuildAPDU(CLADESFire, cmd, 0x00, 0x00, data, &le)
}

// BytesToHex renders data as uppercase hex without separators.
func BytesToHex(data []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, digits[b>>4], digits[b&0x0F])
	}
	return string(out)
}
