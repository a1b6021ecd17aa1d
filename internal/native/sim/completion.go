package sim

import (
	"sync"
	"sync/atomic"

	"github.com/objectfs/rados/internal/native"
)

type completion struct {
	b   *Backend
	arg any
	cb  native.Callback

	submitted atomic.Bool
	complete  atomic.Bool
	released  atomic.Bool

	mu   sync.Mutex
	rv   int
	done chan struct{}
}

var _ native.Completion = (*completion)(nil)

func (b *Backend) newCompletion(arg any, cb native.Callback) (native.Completion, int) {
	if status := b.faults.take(OpCreateCompletion, PhaseInitiate); status < 0 {
		return nil, status
	}
	b.completions.Add(1)
	return &completion{b: b, arg: arg, cb: cb, done: make(chan struct{})}, 0
}

// finish records the status, marks the completion done and runs the
// callback on the calling dispatcher goroutine.
func (c *completion) finish(status int) {
	c.mu.Lock()
	c.rv = status
	c.mu.Unlock()
	c.complete.Store(true)
	close(c.done)

	if c.cb != nil {
		c.cb(c, c.arg)
	}
}

func (c *completion) IsComplete() bool {
	return c.complete.Load()
}

func (c *completion) ReturnValue() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rv
}

func (c *completion) WaitForComplete() {
	<-c.done
}

func (c *completion) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.b.completions.Add(-1)
	}
}
