package reader

import (
	"context"

	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
)

const (
	ultralightPageSize     = 4
	ultralightPagesPerRead = 4
	// ultralightUserPage is the first page past the UID, lock and OTP pages.
	ultralightUserPage = 4
)

// UltralightReader reads the paged memory of a MIFARE Ultralight card, four
// pages per command.
type UltralightReader struct {
	opts   Options
	logger *zap.Logger
}

func NewUltralightReader(opts Options) *UltralightReader {
	return &UltralightReader{opts: opts, logger: opts.logger()}
}

// Read connects tag and reads pages up to its page count. A read failure in
// the header pages is recorded on the card; a later one ends the read.
func (r *UltralightReader) Read(ctx context.Context, tag nfc.UltralightTag) (*card.RawUltralightCard, error) {
	if err := connect(tag, "ReadUltralight"); err != nil {
		return nil, err
	}
	defer closeTag(tag, r.logger)

	return r.read(ctx, tag)
}

func (r *UltralightReader) read(ctx context.Context, tag nfc.UltralightTag) (*card.RawUltralightCard, error) {
	count := tag.PageCount()
	raw := &card.RawUltralightCard{
		Header: card.NewHeader(tag.ID(), r.opts.now()),
		Pages:  make([]card.RawUltralightPage, 0, count),
	}

	for page := 0; page < count; page += ultralightPagesPerRead {
		if err := checkContext(ctx, "ReadUltralight"); err != nil {
			return nil, err
		}

		data, err := tag.ReadPages(page)
		if err == nil && len(data) < ultralightPageSize*ultralightPagesPerRead {
			err = nfc.NewProtocolError("ReadPages", "page %d: want %d bytes, got %d",
				page, ultralightPageSize*ultralightPagesPerRead, len(data))
		}
		if err != nil {
			if nfc.IsChannelError(err) {
				return nil, err
			}
			if page < ultralightUserPage {
				raw.Error = err.Error()
			}
			r.logger.Debug("Page read stopped", zap.Int("page", page), zap.Error(err))
			break
		}

		for i := 0; i < ultralightPagesPerRead && page+i < count; i++ {
			off := i * ultralightPageSize
			raw.Pages = append(raw.Pages, card.RawUltralightPage{
				Index: page + i,
				Data:  append([]byte(nil), data[off:off+ultralightPageSize]...),
			})
		}
	}

	return raw, nil
}
