package keys

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store looks up the key set of a card by tag identifier. A card without keys
// yields nil, nil.
type Store interface {
	Lookup(ctx context.Context, tagID []byte) (*CardKeys, error)
}

// Dictionary is optionally implemented by stores that also carry global keys,
// tried on every sector after the card's own keys.
type Dictionary interface {
	DictionaryKeys() [][]byte
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*CardKeys
	dict [][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*CardKeys)}
}

// Put stores keys under their TagID.
func (s *MemoryStore) Put(keys *CardKeys) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[tagKey(keys.TagID)] = keys
}

// AddDictionaryKey appends a global key.
func (s *MemoryStore) AddDictionaryKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dict = append(s.dict, append([]byte(nil), key...))
}

func (s *MemoryStore) Lookup(_ context.Context, tagID []byte) (*CardKeys, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[tagKey(tagID)], nil
}

func (s *MemoryStore) DictionaryKeys() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([][]byte(nil), s.dict...)
}

// Len returns the number of cards with keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func tagKey(id []byte) string {
	return strings.ToUpper(hex.EncodeToString(id))
}

// File is the YAML layout of a key file.
//
//	dictionary:
//	  - A0A1A2A3A4A5
//	cards:
//	  - tag_id: 04A1B2C3
//	    description: office badge
//	    keys:
//	      - a: FFFFFFFFFFFF
//	        b: FFFFFFFFFFFF
//	  - tag_id: 0A0B0C0D
//	    proxmark3: dumps/0A0B0C0D.bin
type File struct {
	Dictionary []string    `yaml:"dictionary"`
	Cards      []CardEntry `yaml:"cards"`
}

// CardEntry is one card of a key file. Keys and Proxmark3 are mutually exclusive.
type CardEntry struct {
	TagID       string     `yaml:"tag_id"`
	Description string     `yaml:"description,omitempty"`
	Keys        []KeyEntry `yaml:"keys,omitempty"`
	Proxmark3   string     `yaml:"proxmark3,omitempty"`
}

// KeyEntry is the hex key pair of one sector.
type KeyEntry struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// LoadFile reads a YAML key file into a MemoryStore. Relative Proxmark3 paths
// are resolved against the key file's directory.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", path, err)
	}
	return f.build(filepath.Dir(path))
}

func (f *File) build(baseDir string) (*MemoryStore, error) {
	store := NewMemoryStore()

	for i, s := range f.Dictionary {
		key, err := ParseKey(s)
		if err != nil {
			return nil, fmt.Errorf("dictionary[%d]: %w", i, err)
		}
		store.AddDictionaryKey(key)
	}

	for i, entry := range f.Cards {
		tagID, err := ParseTagID(entry.TagID)
		if err != nil {
			return nil, fmt.Errorf("cards[%d]: %w", i, err)
		}

		var cardKeys *CardKeys
		switch {
		case entry.Proxmark3 != "" && len(entry.Keys) > 0:
			return nil, fmt.Errorf("cards[%d]: keys and proxmark3 are mutually exclusive", i)
		case entry.Proxmark3 != "":
			dumpPath := entry.Proxmark3
			if !filepath.IsAbs(dumpPath) {
				dumpPath = filepath.Join(baseDir, dumpPath)
			}
			dump, err := os.ReadFile(dumpPath)
			if err != nil {
				return nil, fmt.Errorf("cards[%d]: read proxmark3 dump: %w", i, err)
			}
			if cardKeys, err = FromProxmark3(dump); err != nil {
				return nil, fmt.Errorf("cards[%d]: %w", i, err)
			}
		default:
			cardKeys = &CardKeys{Keys: make([]SectorKey, 0, len(entry.Keys))}
			for j, k := range entry.Keys {
				a, err := ParseKey(k.A)
				if err != nil {
					return nil, fmt.Errorf("cards[%d].keys[%d].a: %w", i, j, err)
				}
				b, err := ParseKey(k.B)
				if err != nil {
					return nil, fmt.Errorf("cards[%d].keys[%d].b: %w", i, j, err)
				}
				cardKeys.Keys = append(cardKeys.Keys, SectorKey{A: a, B: b})
			}
		}

		cardKeys.TagID = tagID
		cardKeys.Description = entry.Description
		store.Put(cardKeys)
	}

	return store, nil
}
