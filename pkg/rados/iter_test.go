package rados

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/native/sim"
	"github.com/objectfs/rados/pkg/errors"
)

func fillPool(t *testing.T, pool *Pool, n int) []string {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("obj-%03d", i)
		_, err := pool.PutObject(context.Background(), names[i], []byte{byte(i)})
		require.NoError(t, err)
	}
	return names
}

func TestListObjectsCounts(t *testing.T) {
	ctx := context.Background()
	b, cl := newTestCluster(t, sim.Config{PageSize: 16}, Options{})

	for _, n := range []int{0, 1, 150} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			pool := newTestPool(t, cl, fmt.Sprintf("pool-%d", n))
			want := fillPool(t, pool, n)

			it, err := pool.ListObjects(ctx)
			require.NoError(t, err)
			var got []string
			for it.Next() {
				got = append(got, it.Entry().Name)
			}
			require.NoError(t, it.Err())
			slices.Sort(got)
			if n == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, want, got)
			}
			assert.False(t, it.Next(), "exhausted iterator stays exhausted")
			assert.Zero(t, b.Stats().ListCursors)
			require.NoError(t, it.Close())
			assertIdle(t, b)
		})
	}
}

func TestListObjectsReleasesCursorOnBreak(t *testing.T) {
	ctx := context.Background()
	b, cl := newTestCluster(t, sim.Config{PageSize: 4}, Options{})
	pool := newTestPool(t, cl, "data")
	fillPool(t, pool, 20)

	it, err := pool.ListObjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Stats().ListCursors)

	seen := 0
	for _, err := range it.All() {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
	assertIdle(t, b)

	count := 0
	for _, err := range pool.Objects(ctx) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 20, count)
	assertIdle(t, b)
}

func TestListObjectsClose(t *testing.T) {
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	pool := newTestPool(t, cl, "data")
	fillPool(t, pool, 5)

	it, err := pool.ListObjects(context.Background())
	require.NoError(t, err)
	require.True(t, it.Next())
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assertIdle(t, b)
}

func TestListObjectsError(t *testing.T) {
	ctx := context.Background()
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	pool := newTestPool(t, cl, "data")
	fillPool(t, pool, 10)

	b.InjectFault(sim.Fault{Op: sim.OpListNext, Status: -int(unix.EIO), Skip: 5})
	it, err := pool.ListObjects(ctx)
	require.NoError(t, err)
	n := 0
	for it.Next() {
		n++
	}
	assert.Equal(t, 5, n)
	require.Error(t, it.Err())
	assert.Equal(t, -int(unix.EIO), errors.StatusOf(it.Err()))
	assertIdle(t, b)

	b.InjectFault(sim.Fault{Op: sim.OpListNext, Status: -int(unix.EIO), Skip: 2})
	var last error
	n = 0
	for _, err := range pool.Objects(ctx) {
		if err != nil {
			last = err
			continue
		}
		n++
	}
	assert.Equal(t, 2, n)
	assert.Error(t, last)
	assertIdle(t, b)

	b.InjectFault(sim.Fault{Op: sim.OpListOpen, Status: -int(unix.EIO)})
	_, err = pool.ListObjects(ctx)
	assert.Error(t, err)

	for _, err := range cl.Pool("missing").Objects(ctx) {
		assert.True(t, errors.HasCode(err, errors.ErrCodePoolNotFound))
	}
	assertIdle(t, b)
}

func TestListObjectsCanceled(t *testing.T) {
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	pool := newTestPool(t, cl, "data")
	fillPool(t, pool, 5)

	ctx, cancel := context.WithCancel(context.Background())
	it, err := pool.ListObjects(ctx)
	require.NoError(t, err)
	require.True(t, it.Next())
	cancel()
	assert.False(t, it.Next())
	assert.True(t, errors.HasCode(it.Err(), errors.ErrCodeOperationCanceled))
	assertIdle(t, b)
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	_, cl := newTestCluster(t, sim.Config{}, Options{})
	obj, err := newTestPool(t, cl, "data").PutObject(ctx, "obj", []byte("hello, world"))
	require.NoError(t, err)

	r := obj.Reader(ctx)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(all))

	buf := make([]byte, 5)
	n, err := r.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	n, err = r.ReadAt(buf, 10)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "ld", string(buf[:n]))

	pos, err := r.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "world", string(rest))

	_, err = r.Seek(-1, io.SeekStart)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
	_, err = r.ReadAt(buf, -1)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
}

func TestDroppedIteratorIsCollected(t *testing.T) {
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	pool := newTestPool(t, cl, "data")
	fillPool(t, pool, 3)

	func() {
		it, err := pool.ListObjects(context.Background())
		require.NoError(t, err)
		require.True(t, it.Next())
	}()
	require.Eventually(t, func() bool {
		runtime.GC()
		return b.Stats().ListCursors == 0
	}, 2*time.Second, 10*time.Millisecond)
}
