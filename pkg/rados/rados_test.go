package rados

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/metrics"
	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/internal/native/sim"
	"github.com/objectfs/rados/pkg/errors"
	"github.com/objectfs/rados/pkg/retry"
	"github.com/objectfs/rados/pkg/utils"
)

func newTestCluster(t *testing.T, cfg sim.Config, opts Options) (*sim.Backend, *Cluster) {
	t.Helper()
	b := sim.New(cfg)
	opts.Driver = b
	cl, err := Connect(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, cl.Close())
		assert.NoError(t, b.Close())
	})
	return b, cl
}

func newTestPool(t *testing.T, cl *Cluster, name string) *Pool {
	t.Helper()
	require.NoError(t, cl.PoolCreate(context.Background(), name))
	return cl.Pool(name)
}

// assertIdle checks that no native resources are held.
func assertIdle(t *testing.T, b *sim.Backend) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := b.Stats()
		return st.Completions == 0 && st.IoCtxs == 0 && st.ListCursors == 0 && st.XattrIters == 0
	}, time.Second, time.Millisecond, "leaked: %+v", b.Stats())
}

func TestWriteFullThenRead(t *testing.T) {
	ctx := context.Background()
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	obj := newTestPool(t, cl, "data").Object("obj")

	n, err := obj.WriteFull(ctx, []byte("test1"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = obj.Read(ctx, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "test1", string(buf))

	_, err = obj.WriteFull(ctx, []byte("test2"))
	require.NoError(t, err)
	n, err = obj.Read(ctx, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "test2", string(buf[:n]))

	st, err := obj.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), st.Size)
	assert.WithinDuration(t, time.Now(), st.ModTime, time.Minute)

	assertIdle(t, b)
}

func TestObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	pool := newTestPool(t, cl, "data")
	obj := pool.Object("log")

	_, err := obj.Write(ctx, 4, []byte("tail"))
	require.NoError(t, err)
	n, err := obj.Append(ctx, []byte("!!"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	buf := make([]byte, 32)
	n, err = obj.Read(ctx, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00\x00\x00\x00tail!!"), buf[:n])

	n, err = obj.Read(ctx, 8, buf)
	require.NoError(t, err)
	assert.Equal(t, "!!", string(buf[:n]))

	n, err = obj.Read(ctx, 100, buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, obj.Truncate(ctx, 6))
	st, err := obj.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), st.Size)

	require.NoError(t, obj.Truncate(ctx, 10))
	n, err = obj.Read(ctx, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00\x00\x00\x00ta\x00\x00\x00\x00"), buf[:n])

	require.NoError(t, pool.RemoveObject(ctx, "log"))
	_, err = obj.Stat(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrCodeObjectNotFound))
	assert.True(t, errors.IsNotFound(err))

	err = obj.Truncate(ctx, 1)
	assert.True(t, errors.IsNotFound(err))

	assertIdle(t, b)
}

func TestPoolObjectHelpers(t *testing.T) {
	ctx := context.Background()
	_, cl := newTestCluster(t, sim.Config{}, Options{})
	pool := newTestPool(t, cl, "data")

	_, err := pool.GetObject(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	obj, err := pool.PutObject(ctx, "a", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "a", obj.Name())
	assert.Same(t, pool, obj.Pool())

	got, err := pool.GetObject(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name())

	empty, err := pool.CreateObject(ctx, "e")
	require.NoError(t, err)
	st, err := empty.Stat(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Size)
}

func TestReadEmptyBufferIsNotSubmitted(t *testing.T) {
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	obj := cl.Pool("never-created").Object("obj")

	before := b.Stats().Submitted
	n, err := obj.Read(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before, b.Stats().Submitted)
}

func TestAsyncOperations(t *testing.T) {
	ctx := context.Background()
	// One dispatcher keeps submission order.
	b, cl := newTestCluster(t, sim.Config{Workers: 1}, Options{})
	pool := newTestPool(t, cl, "data")

	const n = 64
	for i := 0; i < n; i++ {
		f, err := pool.Object(fmt.Sprintf("obj-%02d", i)).WriteFullAsync([]byte(fmt.Sprint(i)))
		require.NoError(t, err)
		select {
		case <-f.Done():
		case <-time.After(time.Second):
			t.Fatal("write did not complete")
		}
		v, ok, err := f.Result()
		require.True(t, ok)
		require.NoError(t, err)
		assert.Equal(t, len(fmt.Sprint(i)), v)
		f.Release()
	}

	obj := pool.Object("obj-07")
	buf := make([]byte, 8)
	rf, err := obj.ReadAsync(0, buf)
	require.NoError(t, err)
	sf, err := obj.StatAsync()
	require.NoError(t, err)
	af, err := obj.AppendAsync([]byte("x"))
	require.NoError(t, err)

	read, err := rf.Wait(ctx)
	require.NoError(t, err)
	rf.Release()
	st, err := sf.Wait(ctx)
	require.NoError(t, err)
	sf.Release()
	_, err = af.Wait(ctx)
	require.NoError(t, err)
	af.Release()

	assert.Equal(t, "7", string(buf[:read]))
	assert.Equal(t, uint64(1), st.Size)

	wf, err := obj.WriteAsync(1, []byte("yz"))
	require.NoError(t, err)
	_, err = wf.Wait(ctx)
	require.NoError(t, err)
	wf.Release()

	rm, err := obj.RemoveAsync()
	require.NoError(t, err)
	_, err = rm.Wait(ctx)
	require.NoError(t, err)
	rm.Release()

	assertIdle(t, b)
}

func TestReadCancellationLeavesBufferUntouched(t *testing.T) {
	b, cl := newTestCluster(t, sim.Config{Workers: 1}, Options{})
	obj := newTestPool(t, cl, "data").Object("obj")
	_, err := obj.WriteFull(context.Background(), []byte("payload"))
	require.NoError(t, err)

	buf := bytes.Repeat([]byte{0xAA}, 7)
	b.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = obj.Read(ctx, 0, buf)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOperationTimeout))

	assert.Equal(t, int64(1), b.Stats().Completions, "held while the backend owns the operation")
	b.Resume()
	assertIdle(t, b)
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 7), buf)
}

func TestAbandonedWriteStillApplies(t *testing.T) {
	b, cl := newTestCluster(t, sim.Config{Workers: 1}, Options{})
	obj := newTestPool(t, cl, "data").Object("obj")

	b.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := obj.WriteFull(ctx, []byte("late"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeOperationCanceled))
	b.Resume()
	assertIdle(t, b)

	buf := make([]byte, 4)
	n, err := obj.Read(context.Background(), 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "late", string(buf[:n]))
}

func TestInitiationFailureReleasesResources(t *testing.T) {
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	obj := newTestPool(t, cl, "data").Object("obj")

	b.InjectFault(sim.Fault{Op: sim.OpWriteFull, Phase: sim.PhaseInitiate, Status: -int(unix.EIO)})
	_, err := obj.WriteFull(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Equal(t, -int(unix.EIO), errors.StatusOf(err))
	assert.Equal(t, "write_full", err.(*errors.Error).Operation)
	assert.Equal(t, "obj", err.(*errors.Error).Context["object"])
	assertIdle(t, b)

	b.InjectFault(sim.Fault{Op: sim.OpCreateCompletion, Status: -int(unix.ENOMEM)})
	_, err = obj.Stat(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeCompletionCreate))
	assertIdle(t, b)

	b.InjectFault(sim.Fault{Op: sim.OpRead, Phase: sim.PhaseComplete, Status: -int(unix.EIO)})
	_, err = obj.Read(context.Background(), 0, make([]byte, 4))
	assert.True(t, errors.HasCode(err, errors.ErrCodeBackendFailure))
	assertIdle(t, b)
}

func TestPoolNotFound(t *testing.T) {
	ctx := context.Background()
	b, cl := newTestCluster(t, sim.Config{}, Options{})

	_, err := cl.Pool("missing").Object("x").Stat(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrCodePoolNotFound))

	_, err = cl.PoolLookup(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodePoolNotFound))

	err = cl.PoolDelete(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodePoolNotFound))
	assertIdle(t, b)
}

func TestObjectSizeLimit(t *testing.T) {
	ctx := context.Background()
	b, cl := newTestCluster(t, sim.Config{MaxObjectSize: 8}, Options{})
	obj := newTestPool(t, cl, "data").Object("obj")

	tooBig := func(t *testing.T, err error) {
		t.Helper()
		require.Error(t, err)
		assert.Equal(t, -int(unix.EFBIG), errors.StatusOf(err))
		assert.True(t, errors.HasCode(err, errors.ErrCodeBackendFailure))
	}

	_, err := obj.Write(ctx, 1<<62, []byte("x"))
	tooBig(t, err)
	_, err = obj.WriteFull(ctx, []byte("123456789"))
	tooBig(t, err)

	_, err = obj.WriteFull(ctx, []byte("12345678"))
	require.NoError(t, err)
	_, err = obj.Write(ctx, ^uint64(0), []byte("xy"))
	tooBig(t, err)
	tooBig(t, obj.Truncate(ctx, 1<<62))
	_, err = obj.Append(ctx, []byte("9"))
	tooBig(t, err)
	require.NoError(t, obj.Truncate(ctx, 4))
	_, err = obj.Write(ctx, 4, []byte("5678"))
	require.NoError(t, err)

	st, err := obj.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), st.Size)
	assertIdle(t, b)
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	b, cl := newTestCluster(t, sim.Config{}, Options{})
	pool := newTestPool(t, cl, "data")
	before := b.Stats().Submitted

	checks := map[string]error{}
	_, checks["object"] = pool.Object("bad\x00name").Stat(ctx)
	_, checks["pool"] = cl.Pool("bad\x00pool").Object("x").Stat(ctx)
	checks["pool_create"] = cl.PoolCreate(ctx, "p\x00")
	_, checks["getxattr"] = pool.Object("x").GetXattr(ctx, "user.\x00")
	checks["setxattr"] = pool.Object("x").SetXattr(ctx, "a\x00", nil)
	checks["snapshot"] = pool.SnapshotCreate(ctx, "s\x00")
	checks["rollback"] = pool.SnapshotRollback(ctx, "o\x00", "s")
	for name, err := range checks {
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidName), "%s: %v", name, err)
	}

	assert.Equal(t, before, b.Stats().Submitted)
	assertIdle(t, b)
}

func TestListPools(t *testing.T) {
	ctx := context.Background()
	_, cl := newTestCluster(t, sim.Config{}, Options{})

	names, err := cl.ListPools(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	// Long enough to overflow the initial buffer.
	var want []string
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("pool-%02d-%s", i, strings.Repeat("x", 40))
		want = append(want, name)
		require.NoError(t, cl.PoolCreate(ctx, name))
	}
	names, err = cl.ListPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, names)

	id, err := cl.PoolLookup(ctx, want[0])
	require.NoError(t, err)
	assert.Positive(t, id)

	err = cl.PoolCreate(ctx, want[0])
	assert.True(t, errors.HasCode(err, errors.ErrCodeObjectExists))

	require.NoError(t, cl.PoolDelete(ctx, want[0]))
	names, err = cl.ListPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, want[1:], names)
}

func TestParsePoolList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"three pools", "a\x00b\x00c\x00\x00", []string{"a", "b", "c"}},
		{"empty", "", nil},
		{"terminator only", "\x00", nil},
		{"empty segments", "a\x00\x00b\x00\x00", []string{"a", "b"}},
		{"invalid utf8", "ok\x00\xffbad\x00\x00", []string{"ok", "�bad"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePoolList([]byte(tt.in)))
		})
	}
}

// growingPools reports a list that never fits the buffer it is given.
type growingPools struct {
	native.Cluster
	calls int
}

func (g *growingPools) PoolList(buf []byte) int {
	g.calls++
	return len(buf) + 10
}

func TestListPoolsSizeExceeded(t *testing.T) {
	h := &growingPools{}
	cl := &Cluster{h: h, logger: utils.DiscardLogger()}

	_, err := cl.ListPools(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeSizeExceeded))
	assert.Equal(t, 2, h.calls)
}

func TestClusterClosed(t *testing.T) {
	ctx := context.Background()
	b := sim.New(sim.Config{})
	defer b.Close()
	cl, err := Connect(ctx, Options{Driver: b})
	require.NoError(t, err)
	pool := newTestPool(t, cl, "data")
	assert.Equal(t, int64(1), b.Stats().Clusters)

	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close())
	assert.Zero(t, b.Stats().Clusters)

	_, err = pool.Object("x").WriteFull(ctx, []byte("x"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeClusterClosed))
	_, err = cl.ListPools(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrCodeClusterClosed))
	_, err = pool.ListObjects(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrCodeClusterClosed))
}

func TestShutdownWaitsForInflight(t *testing.T) {
	b := sim.New(sim.Config{Workers: 1})
	defer b.Close()
	cl, err := Connect(context.Background(), Options{Driver: b})
	require.NoError(t, err)
	obj := newTestPool(t, cl, "data").Object("obj")

	b.Pause()
	f, err := obj.WriteFullAsync([]byte("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = cl.Shutdown(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOperationCanceled))
	assert.Equal(t, int64(1), b.Stats().Clusters, "session kept while an operation is in flight")

	_, err = obj.Stat(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeClusterClosed))

	b.Resume()
	_, err = f.Wait(context.Background())
	require.NoError(t, err)
	f.Release()

	require.NoError(t, cl.Shutdown(context.Background()))
	assert.Zero(t, b.Stats().Clusters)
	assertIdle(t, b)
}

func TestShutdownReportsUnreleasedFutures(t *testing.T) {
	saved := shutdownReport
	shutdownReport = 5 * time.Millisecond
	defer func() { shutdownReport = saved }()

	var logs bytes.Buffer
	logger, err := utils.NewLogger(utils.WARN, "text", &logs)
	require.NoError(t, err)
	b := sim.New(sim.Config{})
	defer b.Close()
	cl, err := Connect(context.Background(), Options{Driver: b, Logger: logger})
	require.NoError(t, err)

	f, err := newTestPool(t, cl, "data").Object("obj").WriteFullAsync([]byte("x"))
	require.NoError(t, err)
	_, err = f.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = cl.Shutdown(ctx)
	require.True(t, errors.HasCode(err, errors.ErrCodeOperationCanceled))
	assert.Equal(t, "1", err.(*errors.Error).Context["in_flight"])
	assert.Contains(t, logs.String(), "shutdown waiting for operations")
	assert.Contains(t, logs.String(), "in_flight=1")

	f.Release()
	require.NoError(t, cl.Close())
	assertIdle(t, b)
}

func TestConnect(t *testing.T) {
	fast := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}

	t.Run("no driver", func(t *testing.T) {
		_, err := Connect(context.Background(), Options{})
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
	})

	t.Run("defaults", func(t *testing.T) {
		_, cl := newTestCluster(t, sim.Config{}, Options{})
		assert.Equal(t, DefaultClusterName, cl.Name())
		assert.Equal(t, DefaultUser, cl.User())
	})

	t.Run("create fails", func(t *testing.T) {
		b := sim.New(sim.Config{})
		defer b.Close()
		b.InjectFault(sim.Fault{Op: sim.OpCreate, Status: -int(unix.ENOMEM)})
		_, err := Connect(context.Background(), Options{Driver: b})
		assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
		assert.Equal(t, -int(unix.ENOMEM), errors.StatusOf(err))
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		b := sim.New(sim.Config{})
		defer b.Close()
		b.InjectFault(sim.Fault{Op: sim.OpConnect, Status: -int(unix.EAGAIN), Count: 2})
		cl, err := Connect(context.Background(), Options{Driver: b, Retry: fast})
		require.NoError(t, err)
		require.NoError(t, cl.Close())
	})

	t.Run("retries exhausted", func(t *testing.T) {
		b := sim.New(sim.Config{})
		defer b.Close()
		b.InjectFault(sim.Fault{Op: sim.OpConnect, Status: -int(unix.ETIMEDOUT), Count: 5})
		_, err := Connect(context.Background(), Options{Driver: b, Retry: fast})
		assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
		assert.True(t, errors.HasCode(err.(*errors.Error).Cause, errors.ErrCodeRetryExhausted))
		assert.Zero(t, b.Stats().Clusters)
	})

	t.Run("permission denied is not retried", func(t *testing.T) {
		b := sim.New(sim.Config{AllowedUsers: []string{"client.admin"}})
		defer b.Close()
		_, err := Connect(context.Background(), Options{Driver: b, User: "client.guest", Retry: fast})
		assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailed))
		assert.Equal(t, -int(unix.EACCES), errors.StatusOf(err))
	})

	t.Run("config file", func(t *testing.T) {
		b := sim.New(sim.Config{})
		defer b.Close()
		path := filepath.Join(t.TempDir(), "ceph.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mon_host: 127.0.0.1\n"), 0o600))
		cl, err := Connect(context.Background(), Options{Driver: b, ConfigFile: path})
		require.NoError(t, err)
		require.NoError(t, cl.Close())

		_, err = Connect(context.Background(), Options{Driver: b, ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
		assert.True(t, errors.HasCode(err, errors.ErrCodeConfigLoad))
	})
}

func TestPoolStat(t *testing.T) {
	ctx := context.Background()
	_, cl := newTestCluster(t, sim.Config{}, Options{})
	pool := newTestPool(t, cl, "data")
	for i := 0; i < 3; i++ {
		_, err := pool.PutObject(ctx, fmt.Sprint(i), []byte("abcd"))
		require.NoError(t, err)
	}

	st, err := pool.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.NumObjects)
	assert.Equal(t, uint64(12), st.NumBytes)
	assert.Equal(t, uint64(3), st.NumWr)
}

func TestOperationMetrics(t *testing.T) {
	ctx := context.Background()
	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	_, cl := newTestCluster(t, sim.Config{}, Options{Metrics: collector})
	obj := newTestPool(t, cl, "data").Object("obj")

	_, err = obj.WriteFull(ctx, []byte("hello"))
	require.NoError(t, err)
	_, err = obj.Stat(ctx)
	require.NoError(t, err)
	_, err = cl.Pool("data").Object("missing").Stat(ctx)
	require.Error(t, err)

	m := collector.GetMetrics()
	assert.Equal(t, int64(1), m["write_full"].Count)
	assert.Equal(t, int64(5), m["write_full"].TotalSize)
	assert.Equal(t, int64(2), m["stat"].Count)
	assert.Equal(t, int64(1), m["stat"].Errors)
}
