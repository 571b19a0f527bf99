package nfc

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestDetectTagTypeFromATR(t *testing.T) {
	tests := []struct {
		name string
		atr  string
		want DetectedTagType
		tech Technology
	}{
		{
			name: "classic 1k",
			atr:  "3B8F8001804F0CA000000306030001000000006A",
			want: DetectedClassic1K,
			tech: TechClassic,
		},
		{
			name: "classic 4k",
			atr:  "3B8F8001804F0CA0000003060300020000000069",
			want: DetectedClassic4K,
			tech: TechClassic,
		},
		{
			name: "ultralight",
			atr:  "3B8F8001804F0CA0000003060300030000000068",
			want: DetectedUltralight,
			tech: TechUltralight,
		},
		{
			name: "felica",
			atr:  "3B8F8001804F0CA00000030611003B0000000042",
			want: DetectedFelica,
			tech: TechFelica,
		},
		{
			name: "iso14443-4 short atr",
			atr:  "3B8180018080",
			want: DetectedISO14443_4,
			tech: TechISODep,
		},
		{
			name: "garbage",
			atr:  "00",
			want: DetectedUnknown,
			tech: TechUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atr, err := hex.DecodeString(tt.atr)
			if err != nil {
				t.Fatalf("bad test ATR: %v", err)
			}
			got := DetectTagTypeFromATR(atr)
			if got != tt.want {
				t.Errorf("DetectTagTypeFromATR() = %v, want %v", got, tt.want)
			}
			if got.Technology() != tt.tech {
				t.Errorf("Technology() = %v, want %v", got.Technology(), tt.tech)
			}
		})
	}
}

func TestDetectFromSAK(t *testing.T) {
	tests := []struct {
		sak  byte
		want DetectedTagType
	}{
		{0x08, DetectedClassic1K},
		{0x18, DetectedClassic4K},
		{0x09, DetectedMini},
		{0x00, DetectedUltralight},
		{0x20, DetectedISO14443_4},
		{0x28, DetectedISO14443_4},
		{0x01, DetectedUnknown},
	}
	for _, tt := range tests {
		if got := DetectFromSAK(tt.sak); got != tt.want {
			t.Errorf("DetectFromSAK(%02X) = %v, want %v", tt.sak, got, tt.want)
		}
	}
}

func TestClassicGeometry(t *testing.T) {
	if got := ClassicSectorCount(DetectedClassic4K); got != 40 {
		t.Errorf("4K sector count = %d, want 40", got)
	}
	if got := ClassicSectorCount(DetectedClassic1K); got != 16 {
		t.Errorf("1K sector count = %d, want 16", got)
	}

	tests := []struct {
		sector, first, trailer, count int
	}{
		{0, 0, 3, 4},
		{15, 60, 63, 4},
		{31, 124, 127, 4},
		{32, 128, 143, 16},
		{39, 240, 255, 16},
	}
	for _, tt := range tests {
		if got := ClassicSectorToBlock(tt.sector); got != tt.first {
			t.Errorf("ClassicSectorToBlock(%d) = %d, want %d", tt.sector, got, tt.first)
		}
		if got := ClassicTrailerBlock(tt.sector); got != tt.trailer {
			t.Errorf("ClassicTrailerBlock(%d) = %d, want %d", tt.sector, got, tt.trailer)
		}
		if got := ClassicBlockCountInSector(tt.sector); got != tt.count {
			t.Errorf("ClassicBlockCountInSector(%d) = %d, want %d", tt.sector, got, tt.count)
		}
	}

	if _, err := ClassicSectorBlockToLinear(DetectedClassic1K, 16, 0); err == nil {
		t.Error("sector 16 of a 1K card should be rejected")
	}
	if got, err := ClassicSectorBlockToLinear(DetectedClassic4K, 33, 2); err != nil || got != 146 {
		t.Errorf("ClassicSectorBlockToLinear(4K, 33, 2) = %d, %v; want 146", got, err)
	}
}

func TestAPDUBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{"get uid", GetUIDAPDU(), "FFCA000000"},
		{"load key", LoadKeyAPDU(0x00, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}), "FF82000006FFFFFFFFFFFF"},
		{"auth key b", MIFAREAuthAPDU(0x07, MIFAREKeyB, 0x00), "FF860000050100076100"},
		{"read binary", ReadBinaryAPDU(0x04, 16), "FFB0000410"},
		{"desfire app ids", DESFireWrapAPDU(DFCmdGetApplicationIDs, nil), "906A000000"},
		{"desfire select", DESFireWrapAPDU(DFCmdSelectApplication, []byte{0xF2, 0x10, 0xF0}), "905A000003F210F000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BytesToHex(tt.got); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if LoadKeyAPDU(0, []byte{1, 2, 3}) != nil {
		t.Error("LoadKeyAPDU should reject short keys")
	}
}

func TestParseAPDUResponse(t *testing.T) {
	resp, err := ParseAPDUResponse([]byte{0x01, 0x02, 0x90, 0x00})
	if err != nil {
		t.Fatalf("ParseAPDUResponse() error = %v", err)
	}
	if !resp.IsSuccess() || !bytes.Equal(resp.Data, []byte{0x01, 0x02}) || resp.StatusWord() != 0x9000 {
		t.Errorf("ParseAPDUResponse() = %+v", resp)
	}

	resp, _ = ParseAPDUResponse([]byte{0x6A, 0x82})
	if resp.Error() == nil {
		t.Error("6A82 should be an error")
	}

	if _, err := ParseAPDUResponse([]byte{0x90}); err == nil {
		t.Error("a one byte response should be rejected")
	}
}

func TestSelectFileAPDU(t *testing.T) {
	want := []byte{0x00, 0xA4, 0x00, 0x00, 0x02, 0x40, 0x00}
	if got := SelectFileAPDU(0x4000); !bytes.Equal(got, want) {
		t.Errorf("SelectFileAPDU(0x4000) = %X, want %X", got, want)
	}
}

func TestMoreDataIsNotAnError(t *testing.T) {
	resp, err := ParseAPDUResponse([]byte{0x61, 0x10})
	if err != nil {
		t.Fatalf("ParseAPDUResponse() error = %v", err)
	}
	if !resp.HasMoreData() || resp.Error() != nil {
		t.Errorf("61 10 should report more data, got %+v", resp)
	}
}

func TestStripFelicaLength(t *testing.T) {
	got, err := StripFelicaLength([]byte{0x04, 0x0D, 0xAA, 0xBB, 0xFF})
	if err != nil || !bytes.Equal(got, []byte{0x0D, 0xAA, 0xBB}) {
		t.Errorf("StripFelicaLength() = %X, %v", got, err)
	}
	if _, err := StripFelicaLength([]byte{0x09, 0x01}); err == nil {
		t.Error("a length past the buffer should fail")
	}
	if got, err := StripFelicaLength(nil); got != nil || err != nil {
		t.Errorf("empty response = %X, %v", got, err)
	}
	if got := FelicaFrame([]byte{0x00, 0xFF, 0xFF}); !bytes.Equal(got, []byte{0x04, 0x00, 0xFF, 0xFF}) {
		t.Errorf("FelicaFrame() = %X", got)
	}
}

func TestMockClassicTag(t *testing.T) {
	key := []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	tag := NewMockClassicTag([]byte{1, 2, 3, 4}, 16)
	tag.KeysB[2] = key

	if _, err := tag.AuthenticateSector(2, key, true); err == nil {
		t.Error("AuthenticateSector before Connect should fail")
	}
	if err := tag.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if ok, _ := tag.AuthenticateSector(2, key, false); ok {
		t.Error("key A should be rejected")
	}
	if ok, _ := tag.AuthenticateSector(2, key, true); !ok {
		t.Error("key B should be accepted")
	}
	if got := tag.CountCalls("Authenticate(2,"); got != 3 {
		t.Errorf("CountCalls = %d, want 3", got)
	}
	if calls := tag.Calls(); calls[len(calls)-1] != "Authenticate(2,B,A0A1A2A3A4A5)" {
		t.Errorf("last call = %q", calls[len(calls)-1])
	}
}
