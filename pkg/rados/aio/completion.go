// Package aio bridges the backend's callback-driven completions to
// goroutine-friendly waiting.
//
// A Completion wraps one native completion. The backend fires a single
// process-level callback on its own goroutine once the operation finishes;
// the callback takes whatever Waker is installed in the completion's
// WakerCell and wakes it. Poll checks for completion and otherwise installs
// the caller's Waker, then checks again so a callback that fired in between
// is never missed. Wait is Poll driven by a channel.
package aio

import (
	"context"
	"sync/atomic"

	"github.com/objectfs/rados/internal/native"
	rerrors "github.com/objectfs/rados/pkg/errors"
)

const component = "aio"

// callback is registered with every native completion. arg is the
// completion's WakerCell.
func callback(_ native.Completion, arg any) {
	if cell, ok := arg.(*WakerCell); ok {
		cell.Fire()
	}
}

// Completion is a single-resolution handle to one in-flight operation.
type Completion struct {
	nc   native.Completion
	cell *WakerCell

	resolved atomic.Bool
	released atomic.Bool
}

// NewCompletion allocates a native completion on cl.
func NewCompletion(cl native.Cluster) (*Completion, error) {
	cell := &WakerCell{}
	nc, status := cl.CreateCompletion(cell, callback)
	if status < 0 || nc == nil {
		err := rerrors.NewError(rerrors.ErrCodeCompletionCreate, "failed to allocate completion").
			WithComponent(component).
			WithCause(rerrors.FromStatus(status))
		err.Status = status
		return nil, err
	}
	return &Completion{nc: nc, cell: cell}, nil
}

// Native returns the handle to pass to an initiation call.
func (c *Completion) Native() native.Completion {
	return c.nc
}

// Poll returns the raw status and true once the operation has finished.
// Otherwise it installs w and returns false; w is woken exactly once when
// the operation finishes, unless it is superseded by a later Poll or
// discarded by Release. A nil w only checks.
//
// Polling again after a result was returned yields an
// ErrCodeAlreadyResolved error.
func (c *Completion) Poll(w Waker) (int, bool, error) {
	if c.released.Load() {
		return 0, true, released()
	}
	if c.resolved.Load() {
		return 0, true, alreadyResolved()
	}
	if c.nc.IsComplete() {
		return c.resolve()
	}
	if w == nil {
		return 0, false, nil
	}

	s := c.cell.install(w)
	// The callback may have fired before the install. If the slot is still
	// ours nobody will wake it, so resolve here. If the callback already
	// took it, the wake is on its way.
	if c.nc.IsComplete() && c.cell.reclaim(s) {
		return c.resolve()
	}
	return 0, false, nil
}

func (c *Completion) resolve() (int, bool, error) {
	if !c.resolved.CompareAndSwap(false, true) {
		return 0, true, alreadyResolved()
	}
	return c.nc.ReturnValue(), true, nil
}

// Wait blocks until the operation finishes or ctx is done. A negative
// status is returned classified. On cancellation the operation keeps
// running; Release must still be called.
func (c *Completion) Wait(ctx context.Context) (int, error) {
	wake := make(chan struct{}, 1)
	w := ChanWaker(wake)
	for {
		status, ready, err := c.Poll(w)
		if ready {
			if err != nil {
				return 0, err
			}
			if status < 0 {
				return status, rerrors.FromStatus(status)
			}
			return status, nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return 0, canceled(ctx)
		}
	}
}

// Resolved reports whether a result was observed.
func (c *Completion) Resolved() bool {
	return c.resolved.Load()
}

// Release frees the native completion. A Waker still installed is dropped
// without being woken. Release is idempotent and safe while the operation
// is still in flight.
func (c *Completion) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	c.cell.Discard()
	c.nc.Release()
}

// ReleaseWhenComplete drops any installed Waker now and frees the native
// completion once the operation has finished, then runs then. It returns
// immediately; use it instead of Release when the operation was submitted
// but its result is no longer wanted.
func (c *Completion) ReleaseWhenComplete(then func()) {
	c.cell.Discard()
	finish := func() {
		c.Release()
		if then != nil {
			then()
		}
	}
	if c.released.Load() || c.nc.IsComplete() {
		finish()
		return
	}
	go func() {
		c.nc.WaitForComplete()
		finish()
	}()
}

func alreadyResolved() error {
	return rerrors.NewError(rerrors.ErrCodeAlreadyResolved, "completion result already observed").
		WithComponent(component).WithOperation("poll")
}

func released() error {
	return rerrors.NewError(rerrors.ErrCodeAlreadyResolved, "completion already released").
		WithComponent(component)
}

func canceled(ctx context.Context) error {
	code := rerrors.ErrCodeOperationCanceled
	if ctx.Err() == context.DeadlineExceeded {
		code = rerrors.ErrCodeOperationTimeout
	}
	return rerrors.NewError(code, "wait abandoned before completion").
		WithComponent(component).
		WithOperation("wait").
		WithCause(ctx.Err())
}
