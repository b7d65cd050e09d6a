// Package store persists bonding and session data for peers in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Bond is the persisted state of one bonded peer.
type Bond struct {
	Peer      string
	CCCD      uint8 // measurement client configuration (notify/indicate bits)
	Battery   bool  // battery level notifications enabled
	UpdatedAt time.Time
	Writes    int // number of times the bond was flushed
}

// Store is a SQLite-backed bond table.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS bonds (
	peer       TEXT PRIMARY KEY,
	cccd       INTEGER NOT NULL DEFAULT 0,
	battery    INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL,
	writes     INTEGER NOT NULL DEFAULT 0
);`

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// One writer; an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveBond inserts or updates the bond for b.Peer and bumps its write count.
func (s *Store) SaveBond(ctx context.Context, b Bond) error {
	if b.Peer == "" {
		return fmt.Errorf("save bond: empty peer")
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO bonds (peer, cccd, battery, updated_at, writes)
VALUES (?, ?, ?, ?, 1)
ON CONFLICT(peer) DO UPDATE SET
	cccd = excluded.cccd,
	battery = excluded.battery,
	updated_at = excluded.updated_at,
	writes = bonds.writes + 1`,
		b.Peer, b.CCCD, b.Battery, b.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save bond %s: %w", b.Peer, err)
	}
	return nil
}

// Bonds returns all stored bonds ordered by peer address.
func (s *Store) Bonds(ctx context.Context) ([]Bond, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT peer, cccd, battery, updated_at, writes FROM bonds ORDER BY peer`)
	if err != nil {
		return nil, fmt.Errorf("query bonds: %w", err)
	}
	defer rows.Close()

	var out []Bond
	for rows.Next() {
		var b Bond
		if err := rows.Scan(&b.Peer, &b.CCCD, &b.Battery, &b.UpdatedAt, &b.Writes); err != nil {
			return nil, fmt.Errorf("scan bond: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bonds: %w", err)
	}
	return out, nil
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on", nil
	}

	dir := filepath.Dir(path)
	if dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
