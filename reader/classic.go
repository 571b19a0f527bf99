package reader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/keys"
	"github.com/nedpals/davi-transit/nfc"
)

// classicReadRetries bounds the re-authenticate-and-read loop for blocks that
// come back as a single status byte.
const classicReadRetries = 3

// ClassicReader reads MIFARE Classic cards.
//
// Each sector is authenticated in this order, stopping at the first key the
// card accepts:
//
//  1. the all-zero preamble key as key A (sector 0 only)
//  2. the factory default key as key A
//  3. the card key mapped to this sector, key A then key B
//  4. every other card key, key A then key B
//  5. the dictionary keys, key A then key B
//
// A sector no key opens is recorded as unauthorized.
type ClassicReader struct {
	opts   Options
	logger *zap.Logger
}

func NewClassicReader(opts Options) *ClassicReader {
	return &ClassicReader{opts: opts, logger: opts.logger()}
}

// classicAuth is the key that opened a sector.
type classicAuth struct {
	key    []byte
	keyB   bool
	source string
}

// Read connects tag and reads every sector. cardKeys may be nil.
func (r *ClassicReader) Read(ctx context.Context, tag nfc.ClassicTag, cardKeys *keys.CardKeys) (*card.RawClassicCard, error) {
	if err := connect(tag, "ReadClassic"); err != nil {
		return nil, err
	}
	defer closeTag(tag, r.logger)

	return r.read(ctx, tag, cardKeys)
}

func (r *ClassicReader) read(ctx context.Context, tag nfc.ClassicTag, cardKeys *keys.CardKeys) (*card.RawClassicCard, error) {
	count := tag.SectorCount()
	raw := &card.RawClassicCard{
		Header:  card.NewHeader(tag.ID(), r.opts.now()),
		Sectors: make([]card.RawClassicSector, 0, count),
	}

	for sector := 0; sector < count; sector++ {
		if err := checkContext(ctx, "ReadClassic"); err != nil {
			return nil, err
		}

		auth, err := r.authenticate(ctx, tag, sector, cardKeys)
		if err != nil {
			return nil, err
		}
		if auth == nil {
			r.logger.Debug("Sector unauthorized", zap.Int("sector", sector))
			raw.Sectors = append(raw.Sectors, card.NewClassicUnauthorizedSector(sector))
			continue
		}

		blocks, err := r.readSector(ctx, tag, sector, auth)
		if err != nil {
			if nfc.IsChannelError(err) {
				return nil, err
			}
			r.logger.Debug("Sector invalid", zap.Int("sector", sector), zap.Error(err))
			raw.Sectors = append(raw.Sectors, card.NewClassicInvalidSector(sector, err.Error()))
			continue
		}

		r.logger.Debug("Sector read",
			zap.Int("sector", sector),
			zap.String("key_source", auth.source),
			zap.String("key_type", keyType(auth.keyB)))
		raw.Sectors = append(raw.Sectors, card.NewClassicDataSector(sector, blocks))
	}

	return raw, nil
}

// authenticate walks the key order for one sector. It returns nil when every
// key was rejected and an error only when the channel failed.
func (r *ClassicReader) authenticate(ctx context.Context, tag nfc.ClassicTag, sector int, cardKeys *keys.CardKeys) (*classicAuth, error) {
	try := func(key []byte, keyB bool, source string) (*classicAuth, error) {
		if len(key) != keys.KeyLength {
			return nil, nil
		}
		if err := checkContext(ctx, "ReadClassic"); err != nil {
			return nil, err
		}
		ok, err := tag.AuthenticateSector(sector, key, keyB)
		if err != nil {
			if nfc.IsChannelError(err) {
				return nil, err
			}
			r.logger.Debug("Authentication error",
				zap.Int("sector", sector),
				zap.String("key_source", source),
				zap.String("key_type", keyType(keyB)),
				zap.Error(err))
			return nil, nil
		}
		if !ok {
			return nil, nil
		}
		return &classicAuth{key: key, keyB: keyB, source: source}, nil
	}

	tryPair := func(sk *keys.SectorKey, source string) (*classicAuth, error) {
		if sk == nil {
			return nil, nil
		}
		if auth, err := try(sk.A, false, source); auth != nil || err != nil {
			return auth, err
		}
		return try(sk.B, true, source)
	}

	if sector == 0 {
		if auth, err := try(keys.KeyZero, false, "preamble"); auth != nil || err != nil {
			return auth, err
		}
	}

	if auth, err := try(keys.KeyDefault, false, "default"); auth != nil || err != nil {
		return auth, err
	}

	if cardKeys != nil {
		if auth, err := tryPair(cardKeys.KeyForSector(sector), fmt.Sprintf("card[%d]", sector)); auth != nil || err != nil {
			return auth, err
		}

		for i := range cardKeys.Keys {
			// Already tried as the mapped key.
			if i == sector {
				continue
			}
			if auth, err := tryPair(&cardKeys.Keys[i], fmt.Sprintf("card[%d]", i)); auth != nil || err != nil {
				return auth, err
			}
		}
	}

	for i, key := range r.opts.DictionaryKeys {
		pair := keys.SectorKey{A: key, B: key}
		if auth, err := tryPair(&pair, fmt.Sprintf("dictionary[%d]", i)); auth != nil || err != nil {
			return auth, err
		}
	}

	return nil, nil
}

// readSector reads every block of an authenticated sector. Single-byte
// results are retried after re-authenticating with the key that worked.
func (r *ClassicReader) readSector(ctx context.Context, tag nfc.ClassicTag, sector int, auth *classicAuth) ([]card.RawClassicBlock, error) {
	first := tag.SectorToBlock(sector)
	count := tag.BlockCountInSector(sector)
	blocks := make([]card.RawClassicBlock, 0, count)

	for i := 0; i < count; i++ {
		if err := checkContext(ctx, "ReadClassic"); err != nil {
			return nil, err
		}
		data, err := tag.ReadBlock(first + i)
		if err != nil {
			return nil, err
		}

		for retry := 0; retry < classicReadRetries && len(data) == 1; retry++ {
			r.logger.Debug("Short block read, retrying",
				zap.Int("sector", sector),
				zap.Int("block", i),
				zap.Int("retry", retry+1))
			if _, err := tag.AuthenticateSector(sector, auth.key, auth.keyB); err != nil && nfc.IsChannelError(err) {
				return nil, err
			}
			if data, err = tag.ReadBlock(first + i); err != nil {
				return nil, err
			}
		}

		blocks = append(blocks, card.RawClassicBlock{Index: i, Data: data})
	}
	return blocks, nil
}

func keyType(keyB bool) string {
	if keyB {
		return "B"
	}
	return "A"
}
