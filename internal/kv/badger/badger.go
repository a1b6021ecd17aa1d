// Package badger provides a kv.Store backed by BadgerDB.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/objectfs/rados/internal/kv"
)

// Config configures the badger store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `mapstructure:"path"`
	// InMemory keeps all data in memory.
	InMemory bool `mapstructure:"in_memory"`
	// BlockCacheSizeMB defaults to 64.
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`
}

// Store is a kv.Store over a badger database.
type Store struct {
	db *badger.DB
}

// Open opens or creates the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	cacheMB := cfg.BlockCacheSizeMB
	if cacheMB == 0 {
		cacheMB = 64
	}
	opts = opts.WithBlockCacheSize(cacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key kv.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kv.Encode(key))
		if err == badger.ErrKeyNotFound {
			return kv.ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, mapErr(err)
}

func (s *Store) Put(ctx context.Context, key kv.Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(kv.Encode(key), bytes.Clone(value))
	}))
}

func (s *Store) Delete(ctx context.Context, key kv.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr(s.db.Update(func(txn *badger.Txn) error {
		k := kv.Encode(key)
		if _, err := txn.Get(k); err == badger.ErrKeyNotFound {
			return kv.ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(k)
	}))
}

func (s *Store) Scan(ctx context.Context, prefix kv.Key, startAfter kv.Key, limit int) ([]kv.Entry, error) {
	var out []kv.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = kv.EncodePrefix(prefix)
		if limit > 0 && limit < opts.PrefetchSize {
			opts.PrefetchSize = limit
		}

		it := txn.NewIterator(opts)
		defer it.Close()

		var after []byte
		if startAfter != nil {
			after = kv.Encode(startAfter)
			it.Seek(after)
		} else {
			it.Rewind()
		}

		for ; it.Valid(); it.Next() {
			if len(out)%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			item := it.Item()
			if after != nil && bytes.Equal(item.Key(), after) {
				continue
			}

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, kv.Entry{Key: kv.Decode(item.KeyCopy(nil)), Value: val})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, mapErr(err)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func mapErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return kv.ErrClosed
	}
	return err
}
