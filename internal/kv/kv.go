// Package kv defines the ordered key/value persistence used by the simulated
// cluster. Keys are segment lists so each store can choose an encoding that
// keeps lexical ordering of segments intact.
package kv

import (
	"bytes"
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get and Delete for missing keys.
var ErrNotFound = errors.New("kv: key not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Key is an ordered list of segments.
type Key []string

// Child returns a copy of k with seg appended.
func (k Key) Child(seg ...string) Key {
	out := make(Key, 0, len(k)+len(seg))
	out = append(out, k...)
	return append(out, seg...)
}

// Last returns the final segment, or "" for an empty key.
func (k Key) Last() string {
	if len(k) == 0 {
		return ""
	}
	return k[len(k)-1]
}

// HasPrefix reports whether prefix is a leading run of k's segments.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	return strings.Join(k, "/")
}

// Entry is a key and its value.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is an ordered key/value store.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Put(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error
	// Scan returns up to limit entries whose keys have prefix as a segment
	// prefix and sort strictly after startAfter, in ascending order. A nil
	// startAfter starts from the first key under prefix. limit <= 0 means
	// no limit.
	Scan(ctx context.Context, prefix Key, startAfter Key, limit int) ([]Entry, error)
	Close() error
}

// Separator joins segments in the byte encoding used by ordered stores.
const Separator = 0x00

// Encode joins segments with NUL. Segments must not contain NUL; the
// client rejects such names before they reach a store.
func Encode(k Key) []byte {
	var b bytes.Buffer
	for i, seg := range k {
		if i > 0 {
			b.WriteByte(Separator)
		}
		b.WriteString(seg)
	}
	return b.Bytes()
}

// EncodePrefix returns the byte prefix that matches every key below k.
func EncodePrefix(k Key) []byte {
	if len(k) == 0 {
		return nil
	}
	return append(Encode(k), Separator)
}

// Decode splits an encoded key.
func Decode(b []byte) Key {
	if len(b) == 0 {
		return Key{}
	}
	parts := bytes.Split(b, []byte{Separator})
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = string(p)
	}
	return k
}

// Compare orders keys segment by segment.
func Compare(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
