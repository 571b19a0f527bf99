// Package store archives raw card scans in SQLite so they can be re-parsed
// later without the card.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
)

// ErrNotFound is returned for a scan ID that is not in the archive.
var ErrNotFound = errors.New("scan not found")

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	tag_id TEXT NOT NULL,
	card_type TEXT NOT NULL,
	scanned_at INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS scans_scanned_at ON scans(scanned_at);
`

// Summary describes an archived scan without decoding it.
type Summary struct {
	ID        uuid.UUID     `json:"id"`
	TagID     string        `json:"tagId"`
	CardType  card.CardType `json:"cardType"`
	ScannedAt time.Time     `json:"scannedAt"`
}

// SQLite is the scan archive. Each row holds the card.Marshal envelope of
// one raw card.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at dsn, a modernc.org/sqlite
// data source such as a file path or ":memory:".
func Open(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Call Migrate before first use on a fresh one.
func New(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

// Save stores raw under id.
func (s *SQLite) Save(ctx context.Context, id uuid.UUID, raw card.RawCard) error {
	data, err := card.Marshal(raw)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scans(id, tag_id, card_type, scanned_at, data) VALUES(?,?,?,?,?)`,
		id.String(), nfc.BytesToHex(raw.TagID()), raw.CardType().String(), raw.ScannedAt().UnixNano(), data)
	if err != nil {
		return fmt.Errorf("save scan %s: %w", id, err)
	}
	return nil
}

// Get returns the raw card archived under id.
func (s *SQLite) Get(ctx context.Context, id uuid.UUID) (card.RawCard, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM scans WHERE id = ?`, id.String()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}

	raw, err := card.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}
	return raw, nil
}

// List returns up to limit summaries, newest scan first. A limit of zero or
// less returns every scan.
func (s *SQLite) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tag_id, card_type, scanned_at FROM scans ORDER BY scanned_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			id, tagID, cardType string
			scannedAt           int64
		)
		if err := rows.Scan(&id, &tagID, &cardType, &scannedAt); err != nil {
			return nil, fmt.Errorf("list scans: %w", err)
		}
		sum := Summary{TagID: tagID, ScannedAt: time.Unix(0, scannedAt).UTC()}
		if sum.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("list scans: bad id %q: %w", id, err)
		}
		if sum.CardType, err = card.ParseCardType(cardType); err != nil {
			return nil, fmt.Errorf("list scans: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return out, nil
}

// Delete removes the scan archived under id.
func (s *SQLite) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
