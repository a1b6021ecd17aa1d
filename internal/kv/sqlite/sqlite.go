// Package sqlite provides a kv.Store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/objectfs/rados/internal/kv"
)

// Config configures the sqlite store.
type Config struct {
	// Path is the database file. ":memory:" keeps the database in memory.
	Path string `mapstructure:"path"`
}

// Store is a kv.Store over a single SQLite table.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers; scans are short.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initDB(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

func (s *Store) initDB(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			k BLOB PRIMARY KEY,
			v BLOB NOT NULL
		) WITHOUT ROWID`)
	return err
}

func (s *Store) Get(ctx context.Context, key kv.Key) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, kv.Encode(key)).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, key kv.Key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		kv.Encode(key), value)
	return mapErr(err)
}

func (s *Store) Delete(ctx context.Context, key kv.Key) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, kv.Encode(key))
	if err != nil {
		return mapErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return kv.ErrNotFound
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, prefix kv.Key, startAfter kv.Key, limit int) ([]kv.Entry, error) {
	var (
		conds []string
		args  []any
	)
	if p := kv.EncodePrefix(prefix); p != nil {
		conds = append(conds, "k >= ?", "k < ?")
		args = append(args, p, prefixEnd(p))
	}
	if startAfter != nil {
		conds = append(conds, "k > ?")
		args = append(args, kv.Encode(startAfter))
	}

	query := "SELECT k, v FROM kv"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY k"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []kv.Entry
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out = append(out, kv.Entry{Key: kv.Decode(k), Value: v})
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// prefixEnd returns the smallest key greater than every key starting with p.
// p always ends in the separator byte, so incrementing the last byte is safe.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	end[len(end)-1]++
	return end
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrConnDone) || (err != nil && strings.Contains(err.Error(), "database is closed")) {
		return kv.ErrClosed
	}
	return err
}
