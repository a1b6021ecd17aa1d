// Package kvtest holds a conformance suite shared by the kv.Store
// implementations.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/rados/internal/kv"
)

// Run exercises a fresh store returned by open. The store is closed by the
// suite.
func Run(t *testing.T, open func(t *testing.T) kv.Store) {
	t.Run("GetPutDelete", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		key := kv.Key{"pool", "data", "obj"}
		_, err := s.Get(ctx, key)
		assert.True(t, errors.Is(err, kv.ErrNotFound))

		require.NoError(t, s.Put(ctx, key, []byte("v1")))
		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, s.Put(ctx, key, []byte("v2")))
		got, err = s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)

		require.NoError(t, s.Delete(ctx, key))
		_, err = s.Get(ctx, key)
		assert.True(t, errors.Is(err, kv.ErrNotFound))
		assert.True(t, errors.Is(s.Delete(ctx, key), kv.ErrNotFound))
	})

	t.Run("EmptyValue", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, kv.Key{"a"}, nil))
		got, err := s.Get(ctx, kv.Key{"a"})
		require.NoError(t, err)
		assert.Len(t, got, 0)
	})

	t.Run("ScanOrderAndPaging", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		prefix := kv.Key{"obj", "p"}
		for i := 9; i >= 0; i-- {
			require.NoError(t, s.Put(ctx, prefix.Child(fmt.Sprintf("o%02d", i)), []byte{byte(i)}))
		}
		// Siblings that share a byte prefix but not a segment prefix.
		require.NoError(t, s.Put(ctx, kv.Key{"obj", "pp", "x"}, []byte("other")))
		require.NoError(t, s.Put(ctx, kv.Key{"obj", "o", "x"}, []byte("other")))

		all, err := s.Scan(ctx, prefix, nil, 0)
		require.NoError(t, err)
		require.Len(t, all, 10)
		for i, e := range all {
			assert.Equal(t, prefix.Child(fmt.Sprintf("o%02d", i)), e.Key)
			assert.Equal(t, []byte{byte(i)}, e.Value)
		}

		var names []string
		var after kv.Key
		for {
			page, err := s.Scan(ctx, prefix, after, 3)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			assert.LessOrEqual(t, len(page), 3)
			for _, e := range page {
				names = append(names, e.Key.Last())
			}
			after = page[len(page)-1].Key
		}
		assert.Len(t, names, 10)
		assert.Equal(t, "o00", names[0])
		assert.Equal(t, "o09", names[9])
	})

	t.Run("ScanEmptyPrefix", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		out, err := s.Scan(ctx, kv.Key{"nothing"}, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}
