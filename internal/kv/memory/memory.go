// Package memory provides an in-memory kv.Store.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/objectfs/rados/internal/kv"
)

// Store keeps entries in a map and sorts on scan.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key kv.Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kv.ErrClosed
	}
	v, ok := s.data[string(kv.Encode(key))]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (s *Store) Put(_ context.Context, key kv.Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	s.data[string(kv.Encode(key))] = bytes.Clone(value)
	return nil
}

func (s *Store) Delete(_ context.Context, key kv.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	k := string(kv.Encode(key))
	if _, ok := s.data[k]; !ok {
		return kv.ErrNotFound
	}
	delete(s.data, k)
	return nil
}

func (s *Store) Scan(_ context.Context, prefix kv.Key, startAfter kv.Key, limit int) ([]kv.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kv.ErrClosed
	}

	p := string(kv.EncodePrefix(prefix))
	var after string
	if startAfter != nil {
		after = string(kv.Encode(startAfter))
	}

	keys := make([]string, 0)
	for k := range s.data {
		if len(k) < len(p) || k[:len(p)] != p {
			continue
		}
		if startAfter != nil && k <= after {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]kv.Entry, len(keys))
	for i, k := range keys {
		out[i] = kv.Entry{Key: kv.Decode([]byte(k)), Value: bytes.Clone(s.data[k])}
	}
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
