package rados

import (
	"context"
	"iter"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/native"
)

// ObjectEntry is one result of an object enumeration.
type ObjectEntry struct {
	Name      string `json:"name"`
	Key       string `json:"key,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// cursor owns a native list cursor and the pool context it was opened on.
type cursor struct {
	lc      native.ListCtx
	done    func()
	onClose func()
	once    sync.Once
}

func (c *cursor) close() {
	c.once.Do(func() {
		c.lc.Close()
		c.done()
		c.onClose()
	})
}

// ObjectIterator walks the objects of a pool in backend order. It is not
// safe for concurrent use. The cursor is released when iteration ends,
// fails, or Close is called; an iterator that is dropped without any of
// these is released by the garbage collector.
type ObjectIterator struct {
	ctx    context.Context
	pool   string
	cur    *cursor
	closed bool
	entry  ObjectEntry
	err    error
}

// ListObjects opens an enumeration of the pool's objects.
func (p *Pool) ListObjects(ctx context.Context) (*ObjectIterator, error) {
	const op = "list_open"
	if err := ctx.Err(); err != nil {
		return nil, canceled(op, err)
	}
	io, done, err := p.ioctx(op)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	lc, status := io.NObjectsListOpen()
	if status < 0 || lc == nil {
		done()
		err := statusError(op, status, "pool", p.name)
		p.c.observe(op, began, 0, err, "pool", p.name)
		return nil, err
	}
	p.c.observe(op, began, 0, nil, "pool", p.name)

	m := p.c.metrics
	m.CursorOpened()
	it := &ObjectIterator{
		ctx:  ctx,
		pool: p.name,
		cur:  &cursor{lc: lc, done: done, onClose: m.CursorClosed},
	}
	runtime.AddCleanup(it, func(c *cursor) { c.close() }, it.cur)
	return it, nil
}

// Next advances to the next object. It returns false at the end of the
// pool or on failure; Err distinguishes the two.
func (it *ObjectIterator) Next() bool {
	if it.closed {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = canceled("list_next", err)
		it.Close()
		return false
	}
	name, key, nspace, status := it.cur.lc.Next()
	switch {
	case status == -int(unix.ENOENT):
		it.Close()
		return false
	case status < 0:
		it.err = statusError("list_next", status, "pool", it.pool)
		it.Close()
		return false
	}
	it.entry = ObjectEntry{Name: lossy(name), Key: lossy(key), Namespace: lossy(nspace)}
	return true
}

// Entry returns the current object. It is valid after Next returns true.
func (it *ObjectIterator) Entry() ObjectEntry { return it.entry }

// Err returns the error that ended iteration, or nil if it ended cleanly
// or is still running.
func (it *ObjectIterator) Err() error { return it.err }

// Close releases the cursor. It is idempotent.
func (it *ObjectIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.entry = ObjectEntry{}
	it.cur.close()
	return nil
}

// All yields every remaining object. Breaking out of the loop closes the
// iterator. A failure is yielded once as the final pair.
func (it *ObjectIterator) All() iter.Seq2[ObjectEntry, error] {
	return func(yield func(ObjectEntry, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.Entry(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(ObjectEntry{}, err)
		}
	}
}

// Objects opens an enumeration and yields each object. An error opening it
// is yielded as the only pair.
func (p *Pool) Objects(ctx context.Context) iter.Seq2[ObjectEntry, error] {
	return func(yield func(ObjectEntry, error) bool) {
		it, err := p.ListObjects(ctx)
		if err != nil {
			yield(ObjectEntry{}, err)
			return
		}
		it.All()(yield)
	}
}
