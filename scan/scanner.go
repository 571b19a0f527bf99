// Package scan takes a presented tag through the whole pipeline: key lookup,
// read, optional archiving, parsing and transit decoding.
//
//	s := scan.New(scan.Options{Keys: store, Registry: all.Registry(), Logger: logger})
//	res, err := s.Scan(ctx, tag)
//	if err != nil {
//	    return err
//	}
//	if res.Identity != nil {
//	    fmt.Println(res.Identity, res.Report.Balance)
//	}
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/keys"
	"github.com/nedpals/davi-transit/nfc"
	"github.com/nedpals/davi-transit/reader"
	"github.com/nedpals/davi-transit/transit"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond

	// A tag missing from the poll for this long counts as removed.
	minRemovalTimeout = 1 * time.Second
)

// Archive receives every raw card right after it is read.
type Archive interface {
	Save(ctx context.Context, id uuid.UUID, raw card.RawCard) error
}

// Options configures a Scanner. Every field is optional.
type Options struct {
	Keys           keys.Store
	DictionaryKeys [][]byte

	// Registry decodes parsed cards. Nil leaves every card unidentified.
	Registry *transit.Registry

	// Archive, when set, stores each raw card before it is parsed.
	Archive Archive

	Logger *zap.Logger
	Clock  Clock

	// Timeout bounds a single Scan. Zero means DefaultTimeout, negative
	// disables it.
	Timeout      time.Duration
	PollInterval time.Duration
}

// Result is the outcome of one scan.
type Result struct {
	ID  uuid.UUID
	Raw card.RawCard

	// Card is nil only when the raw card could not be parsed.
	Card card.Card

	// Identity and Report are nil for an unidentified card.
	Identity *transit.Identity
	Report   *transit.Report

	// DecodeErr holds a parse or decoder failure. The raw card is still
	// returned and archived.
	DecodeErr error

	// ArchiveErr holds a failed Archive.Save.
	ArchiveErr error

	Duration time.Duration
}

// Operator returns the identified operator name, or "" when unidentified.
func (r *Result) Operator() string {
	if r == nil || r.Identity == nil {
		return ""
	}
	return r.Identity.Name
}

// Scanner runs scans. It is safe for concurrent use as long as the key
// store, registry and archive are.
type Scanner struct {
	opts   Options
	logger *zap.Logger
	clock  Clock
}

func New(opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Scanner{opts: opts, logger: logger, clock: clock}
}

// Scan reads tag and decodes it.
//
// Read failures are returned as errors: channel errors (including a timeout
// or a cancelled ctx) and unsupported technologies. The tag is closed by the
// time Scan returns. Everything after the read
// is best effort and reported on the Result.
func (s *Scanner) Scan(ctx context.Context, tag nfc.Tag) (*Result, error) {
	start := s.clock.Now()
	tagID := nfc.BytesToHex(tag.ID())

	raw, err := s.read(ctx, tag)
	if err != nil {
		s.logger.Warn("Scan failed", zap.String("tag_id", tagID), zap.Error(err))
		return nil, err
	}

	res := &Result{ID: uuid.New(), Raw: raw}

	if s.opts.Archive != nil {
		if err := s.opts.Archive.Save(ctx, res.ID, raw); err != nil {
			s.logger.Warn("Archiving scan failed", zap.String("scan_id", res.ID.String()), zap.Error(err))
			res.ArchiveErr = err
		}
	}

	s.decode(res)
	res.Duration = s.clock.Now().Sub(start)

	s.logger.Info("Scan complete",
		zap.String("tag_id", tagID),
		zap.Stringer("card_type", raw.CardType()),
		zap.String("scan_id", res.ID.String()),
		zap.String("operator", res.Operator()),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// read bounds the read by the scan timeout. Readers check ctx before every
// command, so a timed-out read stops after the command in flight and the tag
// is closed before read returns.
func (s *Scanner) read(ctx context.Context, tag nfc.Tag) (card.RawCard, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	return reader.Read(ctx, tag, s.opts.Keys, reader.Options{
		Logger:         s.logger,
		DictionaryKeys: s.opts.DictionaryKeys,
		Now:            s.clock.Now,
	})
}

// Decode parses a raw card captured earlier, such as one loaded from a file
// or the archive. The Result has no ID.
func (s *Scanner) Decode(raw card.RawCard) *Result {
	res := &Result{Raw: raw}
	s.decode(res)
	return res
}

func (s *Scanner) decode(res *Result) {
	c, err := card.Parse(res.Raw)
	if err != nil {
		res.DecodeErr = fmt.Errorf("parse raw card: %w", err)
		s.logger.Warn("Parsing raw card failed", zap.String("scan_id", res.ID.String()), zap.Error(err))
		return
	}
	res.Card = c

	if s.opts.Registry == nil {
		return
	}
	id, report, err := s.opts.Registry.Parse(c)
	if err != nil {
		res.DecodeErr = err
		s.logger.Warn("Decoding card failed", zap.String("scan_id", res.ID.String()), zap.Error(err))
		return
	}
	res.Identity = id
	res.Report = report
}

// Watch opens device and scans every newly presented tag once, passing each
// outcome to fn, until ctx is done. A tag stays presented until it misses
// the polls for about a second. A tag lost in the middle of a scan is scanned
// again if it is still there on the next poll.
//
// Watch returns nil when ctx is done and an error when the device cannot be
// opened or is closed underneath it. Other poll failures are logged and
// polling goes on.
func (s *Scanner) Watch(ctx context.Context, manager nfc.Manager, device string, fn func(*Result, error)) error {
	dev, err := manager.OpenDevice(device)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			s.logger.Debug("Close device failed", zap.Error(err))
		}
	}()

	s.logger.Info("Watching for cards",
		zap.String("device", dev.String()),
		zap.Duration("poll_interval", s.opts.PollInterval))

	seen := newPresence(max(minRemovalTimeout, 3*s.opts.PollInterval))
	ticker := s.clock.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := s.poll(ctx, dev, seen, fn); err != nil {
				return err
			}
		}
	}
}

func (s *Scanner) poll(ctx context.Context, dev nfc.Device, seen *presence, fn func(*Result, error)) error {
	tags, err := dev.Tags()
	if err != nil {
		if errors.Is(err, nfc.ErrDeviceClosed) {
			return err
		}
		s.logger.Warn("Polling for tags failed", zap.Error(err))
		return nil
	}

	for _, tag := range tags {
		if ctx.Err() != nil {
			return nil
		}
		id := nfc.BytesToHex(tag.ID())
		if !seen.Seen(id, s.clock.Now()) {
			continue
		}

		s.logger.Debug("Tag presented", zap.String("tag_id", id), zap.Stringer("technology", tag.Technology()))
		res, err := s.Scan(ctx, tag)
		if err != nil && nfc.IsChannelError(err) {
			seen.Forget(id)
		} else {
			seen.Touch(id, s.clock.Now())
		}
		fn(res, err)
	}

	for _, id := range seen.Expire(s.clock.Now()) {
		s.logger.Debug("Tag removed", zap.String("tag_id", id))
	}
	return nil
}
