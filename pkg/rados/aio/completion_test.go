package aio

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/native"
	rerrors "github.com/objectfs/rados/pkg/errors"
)

// fakeCluster only implements CreateCompletion.
type fakeCluster struct {
	native.Cluster
	status int
	last   *fakeCompletion
}

func (f *fakeCluster) CreateCompletion(arg any, cb native.Callback) (native.Completion, int) {
	if f.status < 0 {
		return nil, f.status
	}
	f.last = &fakeCompletion{arg: arg, cb: cb}
	return f.last, 0
}

// fakeCompletion lets tests choose when the operation finishes and when
// the callback runs.
type fakeCompletion struct {
	arg any
	cb  native.Callback

	mu       sync.Mutex
	complete bool
	rv       int
	released bool

	// onCheck runs on every IsComplete call before the state is read.
	onCheck func(n int)
	checks  int
}

func (c *fakeCompletion) markComplete(rv int) {
	c.mu.Lock()
	c.complete = true
	c.rv = rv
	c.mu.Unlock()
}

func (c *fakeCompletion) runCallback() {
	c.cb(c, c.arg)
}

func (c *fakeCompletion) finish(rv int) {
	c.markComplete(rv)
	c.runCallback()
}

func (c *fakeCompletion) IsComplete() bool {
	c.mu.Lock()
	c.checks++
	n, hook := c.checks, c.onCheck
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete
}

func (c *fakeCompletion) ReturnValue() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rv
}

func (c *fakeCompletion) WaitForComplete() {}

func (c *fakeCompletion) Release() {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
}

type countingWaker struct {
	n atomic.Int32
}

func (w *countingWaker) Wake() { w.n.Add(1) }

func newTestCompletion(t *testing.T) (*Completion, *fakeCompletion) {
	t.Helper()
	fc := &fakeCluster{}
	c, err := NewCompletion(fc)
	require.NoError(t, err)
	return c, fc.last
}

func TestNewCompletionFailure(t *testing.T) {
	_, err := NewCompletion(&fakeCluster{status: -int(unix.ENOMEM)})
	require.Error(t, err)
	assert.True(t, rerrors.HasCode(err, rerrors.ErrCodeCompletionCreate))
	assert.Equal(t, -int(unix.ENOMEM), rerrors.StatusOf(err))
}

func TestPollCompleteBeforeFirstPoll(t *testing.T) {
	c, fc := newTestCompletion(t)
	fc.finish(7)

	w := &countingWaker{}
	status, ready, err := c.Poll(w)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 7, status)
	assert.Zero(t, w.n.Load())
}

func TestPollPendingThenCallback(t *testing.T) {
	c, fc := newTestCompletion(t)

	w := &countingWaker{}
	_, ready, err := c.Poll(w)
	require.NoError(t, err)
	assert.False(t, ready)
	assert.True(t, c.cell.Installed())

	fc.finish(3)
	assert.Equal(t, int32(1), w.n.Load())
	assert.False(t, c.cell.Installed())

	status, ready, err := c.Poll(w)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 3, status)
	assert.Equal(t, int32(1), w.n.Load())
}

func TestPollAfterResolution(t *testing.T) {
	c, fc := newTestCompletion(t)
	fc.finish(0)

	_, ready, err := c.Poll(nil)
	require.NoError(t, err)
	require.True(t, ready)

	_, ready, err = c.Poll(nil)
	assert.True(t, ready)
	assert.True(t, rerrors.HasCode(err, rerrors.ErrCodeAlreadyResolved))
}

func TestPollSupersedesWaker(t *testing.T) {
	c, fc := newTestCompletion(t)

	first, second := &countingWaker{}, &countingWaker{}
	_, ready, _ := c.Poll(first)
	require.False(t, ready)
	_, ready, _ = c.Poll(second)
	require.False(t, ready)
	assert.Equal(t, int32(1), first.n.Load(), "superseded waker is woken")
	assert.Zero(t, second.n.Load())

	fc.finish(0)
	assert.Equal(t, int32(1), first.n.Load())
	assert.Equal(t, int32(1), second.n.Load())
}

// The operation finishes after the first check but before the waker is
// installed, and the callback has not run yet.
func TestPollCompletesBeforeInstall(t *testing.T) {
	c, fc := newTestCompletion(t)
	fc.onCheck = func(n int) {
		if n == 2 {
			fc.markComplete(11)
		}
	}

	w := &countingWaker{}
	status, ready, err := c.Poll(w)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 11, status)

	fc.runCallback()
	assert.Zero(t, w.n.Load(), "reclaimed waker must not be woken")
}

// The callback runs between the install and the re-check.
func TestPollCallbackBetweenInstallAndRecheck(t *testing.T) {
	c, fc := newTestCompletion(t)
	fc.onCheck = func(n int) {
		if n == 2 {
			fc.finish(5)
		}
	}

	w := &countingWaker{}
	_, ready, err := c.Poll(w)
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, int32(1), w.n.Load())

	status, ready, err := c.Poll(w)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 5, status)
	assert.Equal(t, int32(1), w.n.Load())
}

func TestReleaseDiscardsWaker(t *testing.T) {
	c, fc := newTestCompletion(t)

	w := &countingWaker{}
	_, ready, _ := c.Poll(w)
	require.False(t, ready)

	c.Release()
	c.Release()
	assert.True(t, fc.released)

	fc.finish(0)
	assert.Zero(t, w.n.Load())

	_, ready, err := c.Poll(w)
	assert.True(t, ready)
	assert.True(t, rerrors.HasCode(err, rerrors.ErrCodeAlreadyResolved))
}

func TestWaitClassifiesStatus(t *testing.T) {
	c, fc := newTestCompletion(t)
	go func() {
		time.Sleep(5 * time.Millisecond)
		fc.finish(-int(unix.ENOENT))
	}()

	status, err := c.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, -int(unix.ENOENT), status)
	assert.True(t, rerrors.IsNotFound(err))
}

func TestWaitCanceled(t *testing.T) {
	c, fc := newTestCompletion(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Wait(ctx)
	require.Error(t, err)
	assert.True(t, rerrors.HasCode(err, rerrors.ErrCodeOperationCanceled))
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err = c.Wait(ctx)
	assert.True(t, rerrors.HasCode(err, rerrors.ErrCodeOperationTimeout))

	// The abandoned wait left a waker behind; completing must not block.
	fc.finish(1)
	status, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status)
	c.Release()
}

// Races the callback against Poll. A poll that resolves is never woken; a
// pending poll is woken exactly once.
func TestExactlyOnceWakeUnderRace(t *testing.T) {
	for i := 0; i < 500; i++ {
		c, fc := newTestCompletion(t)
		w := &countingWaker{}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			fc.finish(i)
		}()

		_, ready, err := c.Poll(w)
		require.NoError(t, err)
		wg.Wait()

		if ready {
			assert.Zero(t, w.n.Load())
			continue
		}
		assert.Equal(t, int32(1), w.n.Load())
		status, ready, err := c.Poll(nil)
		require.NoError(t, err)
		require.True(t, ready)
		assert.Equal(t, i, status)
	}
}

func TestReleaseWhenComplete(t *testing.T) {
	c, fc := newTestCompletion(t)
	w := &countingWaker{}
	_, ready, _ := c.Poll(w)
	require.False(t, ready)

	ran := make(chan struct{})
	c.ReleaseWhenComplete(func() { close(ran) })
	// The fake's WaitForComplete returns at once, so release follows
	// promptly; the discarded waker is never woken.
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("release did not run")
	}
	fc.finish(0)
	assert.Zero(t, w.n.Load())
	fc.mu.Lock()
	assert.True(t, fc.released)
	fc.mu.Unlock()
}
