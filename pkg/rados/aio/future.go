package aio

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Future is the typed result of one asynchronous operation.
//
// A Future is driven either by Poll with a caller-supplied Waker or by
// Wait; Done may be used with either. A Waker passed to Poll is woken once
// when the operation finishes, or at once when a later Poll supersedes it
// with a different Waker. Once resolved the result is cached and every later Poll,
// Wait or Result returns it.
type Future[T any] struct {
	comp    *Completion
	finish  func(status int) (T, error)
	cleanup func()

	mu       sync.Mutex
	resolved bool
	val      T
	err      error

	// armed is set while the internal waker is installed in the
	// completion so repeated polls do not reinstall it.
	armed atomic.Bool
	wake  chan struct{}
	// ext is the caller's most recent Waker.
	ext atomic.Pointer[wakerSlot]

	done     chan struct{}
	doneOnce sync.Once
	relOnce  sync.Once
	driving  atomic.Bool
}

// NewFuture wraps a submitted completion. finish converts the raw status
// into the result and is called exactly once. cleanup runs on Release
// after the completion is freed; it may be nil.
func NewFuture[T any](comp *Completion, finish func(status int) (T, error), cleanup func()) *Future[T] {
	return &Future[T]{
		comp:    comp,
		finish:  finish,
		cleanup: cleanup,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Resolved returns a future that already holds v and err.
func Resolved[T any](v T, err error) *Future[T] {
	f := &Future[T]{
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		resolved: true,
		val:      v,
		err:      err,
	}
	close(f.done)
	return f
}

// Poll returns the result and true once the operation has finished.
// Otherwise w is recorded and woken once the operation finishes.
func (f *Future[T]) Poll(w Waker) (T, bool, error) {
	if w != nil {
		if old := f.ext.Swap(&wakerSlot{w: w}); old != nil && !sameWaker(old.w, w) {
			old.w.Wake()
		}
	}
	v, ok, err := f.step()
	if ok {
		f.ext.Store(nil)
	}
	return v, ok, err
}

// step makes one resolution attempt and is the single place the
// completion is polled.
func (f *Future[T]) step() (T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return f.val, true, f.err
	}
	var inner Waker
	if !f.armed.Load() {
		f.armed.Store(true)
		inner = WakerFunc(f.onWake)
	}
	status, ready, err := f.comp.Poll(inner)
	if !ready {
		var zero T
		return zero, false, nil
	}
	f.armed.Store(false)
	if err != nil {
		f.err = err
	} else {
		f.val, f.err = f.finish(status)
	}
	f.resolved = true
	f.doneOnce.Do(func() { close(f.done) })
	return f.val, true, f.err
}

// onWake runs on the backend goroutine.
func (f *Future[T]) onWake() {
	f.armed.Store(false)
	select {
	case f.wake <- struct{}{}:
	default:
	}
	if s := f.ext.Swap(nil); s != nil {
		s.w.Wake()
	}
}

// Wait blocks until the operation finishes or ctx is done. Abandoning a
// wait leaves the operation running; the Future can be waited on again or
// released.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	for {
		if v, ok, err := f.step(); ok {
			return v, err
		}
		select {
		case <-f.wake:
		case <-f.done:
		case <-ctx.Done():
			var zero T
			return zero, canceled(ctx)
		}
	}
}

// Done returns a channel closed once the result is available. The first
// call starts a goroutine that drives the completion.
func (f *Future[T]) Done() <-chan struct{} {
	f.mu.Lock()
	resolved := f.resolved
	f.mu.Unlock()
	if !resolved && f.comp != nil {
		f.startDriver()
	}
	return f.done
}

func (f *Future[T]) startDriver() {
	if !f.driving.CompareAndSwap(false, true) {
		return
	}
	go func() {
		_, _ = f.Wait(context.Background())
	}()
}

// Result returns the cached result if the future has resolved.
func (f *Future[T]) Result() (T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.resolved, f.err
}

// Release frees the completion and runs cleanup. It is idempotent. If the
// operation has not resolved, pending and later waits return an
// ErrCodeAlreadyResolved error, and the completion is freed and cleanup
// run only once the backend has finished with the operation.
func (f *Future[T]) Release() {
	f.relOnce.Do(func() {
		f.ext.Store(nil)

		f.mu.Lock()
		wasResolved := f.resolved
		if !wasResolved {
			f.resolved = true
			f.err = released()
			f.doneOnce.Do(func() { close(f.done) })
		}
		f.mu.Unlock()

		switch {
		case f.comp == nil:
			if f.cleanup != nil {
				f.cleanup()
			}
		case wasResolved:
			f.comp.Release()
			if f.cleanup != nil {
				f.cleanup()
			}
		default:
			f.comp.ReleaseWhenComplete(f.cleanup)
		}
	})
}

// sameWaker reports whether a and b are the same comparable Waker, such as
// one pointer polled twice. Func wakers never compare equal.
func sameWaker(a, b Waker) bool {
	t := reflect.TypeOf(a)
	return t == reflect.TypeOf(b) && t.Comparable() && a == b
}
