package reader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/keys"
	"github.com/nedpals/davi-transit/nfc"
)

// Read picks the reader for the technology of tag and returns its raw card.
//
// Classic keys are looked up in store by tag ID; store may be nil. A store
// that also implements keys.Dictionary contributes its dictionary keys after
// opts.DictionaryKeys. An ISO-DEP tag that answers the DESFire GetVersion
// command is read as DESFire, any other as CEPAS.
//
// A tag with no reader yields an error for which nfc.IsUnsupportedTagError
// reports true.
func Read(ctx context.Context, tag nfc.Tag, store keys.Store, opts Options) (card.RawCard, error) {
	logger := opts.logger()

	switch tag.Technology() {
	case nfc.TechClassic:
		classic, ok := tag.(nfc.ClassicTag)
		if !ok {
			break
		}
		cardKeys := lookupKeys(ctx, store, tag.ID(), logger)
		if dict, ok := store.(keys.Dictionary); ok {
			opts.DictionaryKeys = append(append([][]byte(nil), opts.DictionaryKeys...), dict.DictionaryKeys()...)
		}
		raw, err := NewClassicReader(opts).Read(ctx, classic, cardKeys)
		if err != nil {
			return nil, err
		}
		return raw, nil

	case nfc.TechUltralight:
		ul, ok := tag.(nfc.UltralightTag)
		if !ok {
			break
		}
		raw, err := NewUltralightReader(opts).Read(ctx, ul)
		if err != nil {
			return nil, err
		}
		return raw, nil

	case nfc.TechDESFire:
		iso, ok := tag.(nfc.IsoDepTag)
		if !ok {
			break
		}
		raw, err := NewDesfireReader(opts).Read(ctx, iso)
		if err != nil {
			return nil, err
		}
		return raw, nil

	case nfc.TechISODep:
		iso, ok := tag.(nfc.IsoDepTag)
		if !ok {
			break
		}
		return readIsoDep(ctx, iso, opts)

	case nfc.TechFelica:
		felica, ok := tag.(nfc.FelicaTag)
		if !ok {
			break
		}
		raw, err := NewFelicaReader(opts).Read(ctx, felica)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}

	return nil, nfc.NewUnsupportedTagError(fmt.Sprintf("%s (%T)", tag.Technology(), tag))
}

// readIsoDep sends GetVersion to an ISO-DEP tag inside one connection and
// hands it to the DESFire or the CEPAS reader.
func readIsoDep(ctx context.Context, tag nfc.IsoDepTag, opts Options) (card.RawCard, error) {
	logger := opts.logger()
	if err := connect(tag, "ReadIsoDep"); err != nil {
		return nil, err
	}
	defer closeTag(tag, logger)

	proto := &desfireProtocol{tag: isoDepContext{IsoDepTag: tag, ctx: ctx}}
	manufacturing, err := proto.manufacturingData()
	if err == nil {
		logger.Debug("ISO-DEP tag answered GetVersion, reading as DESFire")
		raw, err := NewDesfireReader(opts).read(ctx, tag, proto, manufacturing)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
	if nfc.IsChannelError(err) {
		return nil, err
	}

	logger.Debug("ISO-DEP tag is not DESFire, reading as CEPAS", zap.Error(err))
	raw, err := NewCEPASReader(opts).read(ctx, tag)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// lookupKeys returns nil when the store has no keys for the tag. A store
// error is logged and the read goes on without keys.
func lookupKeys(ctx context.Context, store keys.Store, tagID []byte, logger *zap.Logger) *keys.CardKeys {
	if store == nil {
		return nil
	}
	cardKeys, err := store.Lookup(ctx, tagID)
	if err != nil {
		logger.Warn("Key lookup failed", zap.String("tag_id", nfc.BytesToHex(tagID)), zap.Error(err))
		return nil
	}
	return cardKeys
}
