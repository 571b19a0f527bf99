// Package reader drives a tag channel through the acquisition sequence of its
// technology and produces a raw card snapshot.
//
// Every reader connects the tag, reads it sector by sector (or application by
// application, purse by purse), and closes the tag on every exit path.
// Channel errors end the read and are returned unchanged. Anything else is
// recorded on the region it happened in, so one damaged sector or file never
// loses the rest of the card.
package reader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/nfc"
)

// Options configures a read.
type Options struct {
	// Logger receives debug lines for every region. Nil disables logging.
	Logger *zap.Logger

	// DictionaryKeys are tried on every Classic sector after the card's own
	// keys, key A then key B.
	DictionaryKeys [][]byte

	// Now stamps the raw card. Nil means time.Now.
	Now func() time.Time
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// connect opens the tag channel. A failed connect is always a channel error.
func connect(tag nfc.Tag, op string) error {
	if err := tag.Connect(); err != nil {
		if nfc.IsChannelError(err) {
			return err
		}
		return nfc.NewChannelError(op, err)
	}
	return nil
}

// checkContext turns a done context into a channel error. Readers call it
// before every command sent to the tag.
func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return nfc.NewChannelError(op, err)
	}
	return nil
}

// isoDepContext refuses to send a command once ctx is done, so a cancelled
// read stops at the next APDU.
type isoDepContext struct {
	nfc.IsoDepTag
	ctx context.Context
}

func (t isoDepContext) Transceive(apdu []byte) ([]byte, error) {
	if err := checkContext(t.ctx, "Transceive"); err != nil {
		return nil, err
	}
	return t.IsoDepTag.Transceive(apdu)
}

type felicaContext struct {
	nfc.FelicaTag
	ctx context.Context
}

func (t felicaContext) Transceive(frame []byte) ([]byte, error) {
	if err := checkContext(t.ctx, "Transceive"); err != nil {
		return nil, err
	}
	return t.FelicaTag.Transceive(frame)
}

func closeTag(tag nfc.Tag, logger *zap.Logger) {
	if err := tag.Close(); err != nil {
		logger.Debug("Close tag failed", zap.Error(err))
	}
}
