package aio

import "sync/atomic"

// Waker is a continuation that resumes a suspended caller. Wake may be
// called from any goroutine.
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to Waker.
type WakerFunc func()

// Wake calls f.
func (f WakerFunc) Wake() { f() }

// ChanWaker returns a Waker that does a non-blocking send on ch. ch should
// have a buffer of at least one.
func ChanWaker(ch chan<- struct{}) Waker {
	return WakerFunc(func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
}

type wakerSlot struct {
	w Waker
}

// WakerCell holds at most one installed Waker. It is shared between the
// goroutine awaiting a completion and the backend goroutine that runs the
// completion callback; every transition is a single atomic swap, so each
// installed Waker is taken by exactly one party.
type WakerCell struct {
	slot atomic.Pointer[wakerSlot]
}

// Install stores w. A previously installed Waker is superseded and woken
// so it is never leaked.
func (c *WakerCell) Install(w Waker) {
	if old := c.slot.Swap(&wakerSlot{w: w}); old != nil {
		old.w.Wake()
	}
}

// install stores w and returns the slot so the caller can reclaim exactly
// that installation.
func (c *WakerCell) install(w Waker) *wakerSlot {
	s := &wakerSlot{w: w}
	if old := c.slot.Swap(s); old != nil {
		old.w.Wake()
	}
	return s
}

// reclaim removes s if it is still installed and reports whether it did.
func (c *WakerCell) reclaim(s *wakerSlot) bool {
	return c.slot.CompareAndSwap(s, nil)
}

// Take removes and returns the installed Waker, or nil.
func (c *WakerCell) Take() Waker {
	if old := c.slot.Swap(nil); old != nil {
		return old.w
	}
	return nil
}

// Fire takes the installed Waker, if any, and wakes it.
func (c *WakerCell) Fire() {
	if w := c.Take(); w != nil {
		w.Wake()
	}
}

// Discard drops the installed Waker without waking it.
func (c *WakerCell) Discard() {
	c.slot.Store(nil)
}

// Installed reports whether a Waker is currently installed.
func (c *WakerCell) Installed() bool {
	return c.slot.Load() != nil
}
