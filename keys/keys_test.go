package keys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T, s string) []byte {
	t.Helper()
	k, err := ParseKey(s)
	require.NoError(t, err)
	return k
}

func TestStaticKeys(t *testing.T) {
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, KeyDefault)
	assert.Equal(t, make([]byte, 6), KeyZero)

	wellKnown := WellKnownKeys()
	require.Len(t, wellKnown, 4)
	for _, k := range wellKnown {
		assert.Len(t, k, KeyLength)
	}

	wellKnown[0][0] = 0x00
	assert.Equal(t, byte(0xFF), KeyDefault[0], "WellKnownKeys must return copies")
}

func TestFromProxmark3(t *testing.T) {
	keyA := []string{"000000000000", "FFFFFFFFFFFF", "A0A1A2A3A4A5", "D3F7D3F7D3F7"}
	keyB := []string{"112233445566", "AABBCCDDEEFF", "010203040506", "FEFDFCFBFAF9"}

	var dump []byte
	for _, k := range keyA {
		dump = append(dump, mustKey(t, k)...)
	}
	for _, k := range keyB {
		dump = append(dump, mustKey(t, k)...)
	}

	keys, err := FromProxmark3(dump)
	require.NoError(t, err)
	require.Equal(t, 4, keys.Len())

	for i := range keyA {
		sk := keys.KeyForSector(i)
		require.NotNil(t, sk, "sector %d", i)
		assert.Equal(t, mustKey(t, keyA[i]), sk.A, "sector %d key A", i)
		assert.Equal(t, mustKey(t, keyB[i]), sk.B, "sector %d key B", i)
	}
	assert.Nil(t, keys.KeyForSector(4))
	assert.Nil(t, keys.KeyForSector(-1))
}

func TestFromProxmark3Invalid(t *testing.T) {
	_, err := FromProxmark3(nil)
	assert.Error(t, err)

	_, err = FromProxmark3(make([]byte, 18))
	assert.Error(t, err)
}

func TestDefaultKeysForSectorCount(t *testing.T) {
	keys := DefaultKeysForSectorCount(16)
	require.Equal(t, 16, keys.Len())
	for i := 0; i < 16; i++ {
		sk := keys.KeyForSector(i)
		require.NotNil(t, sk)
		assert.Equal(t, KeyDefault, sk.A)
		assert.Equal(t, KeyDefault, sk.B)
	}
	assert.Nil(t, keys.KeyForSector(16))
	assert.Nil(t, keys.KeyForSector(100))

	var nilKeys *CardKeys
	assert.Nil(t, nilKeys.KeyForSector(0))
	assert.Zero(t, nilKeys.Len())
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "A0A1A2A3A4A5", want: KeyMAD},
		{in: "a0:a1:a2:a3:a4:a5", want: KeyMAD},
		{in: "D3 F7 D3 F7 D3 F7", want: KeyNFCForum},
		{in: "A0A1A2", wantErr: true},
		{in: "ZZZZZZZZZZZZ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSectorKey(t *testing.T) {
	a := mustKey(t, "010203040506")
	b := mustKey(t, "FFEEDDCCBBAA")
	sk, err := NewSectorKey(a, b)
	require.NoError(t, err)
	assert.True(t, sk.Equal(SectorKey{A: a, B: b}))

	a[0] = 0x99
	assert.Equal(t, byte(0x01), sk.A[0], "NewSectorKey must copy")

	_, err = NewSectorKey(a[:3], b)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	id := []byte{0x04, 0xA1, 0xB2, 0xC3}
	store.Put(&CardKeys{TagID: id, Keys: DefaultKeysForSectorCount(2).Keys})

	got, err := store.Lookup(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Len())

	missing, err := store.Lookup(context.Background(), []byte{0x01})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	dump := append(append([]byte(nil), KeyMAD...), KeyNFCForum...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card.bin"), dump, 0o600))

	content := `dictionary:
  - "A0A1A2A3A4A5"
cards:
  - tag_id: "04:a1:b2:c3"
    description: office badge
    keys:
      - a: FFFFFFFFFFFF
        b: "000000000000"
      - a: A0A1A2A3A4A5
        b: D3F7D3F7D3F7
  - tag_id: 0A0B0C0D
    proxmark3: card.bin
`
	path := filepath.Join(dir, "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, [][]byte{KeyMAD}, store.DictionaryKeys())

	badge, err := store.Lookup(context.Background(), []byte{0x04, 0xA1, 0xB2, 0xC3})
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, "office badge", badge.Description)
	require.Equal(t, 2, badge.Len())
	assert.Equal(t, KeyZero, badge.KeyForSector(0).B)

	pm3, err := store.Lookup(context.Background(), []byte{0x0A, 0x0B, 0x0C, 0x0D})
	require.NoError(t, err)
	require.NotNil(t, pm3)
	require.Equal(t, 1, pm3.Len())
	assert.Equal(t, KeyMAD, pm3.KeyForSector(0).A)
	assert.Equal(t, KeyNFCForum, pm3.KeyForSector(0).B)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "cards: [\n"},
		{"bad dictionary key", "dictionary: [\"AB\"]\n"},
		{"bad tag id", "cards:\n  - tag_id: XYZ\n"},
		{"bad sector key", "cards:\n  - tag_id: 01\n    keys:\n      - a: FF\n        b: FFFFFFFFFFFF\n"},
		{"both sources", "cards:\n  - tag_id: 01\n    proxmark3: x.bin\n    keys:\n      - a: FFFFFFFFFFFF\n        b: FFFFFFFFFFFF\n"},
		{"missing dump", "cards:\n  - tag_id: 01\n    proxmark3: missing.bin\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "keys.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
