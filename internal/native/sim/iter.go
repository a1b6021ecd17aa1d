package sim

import (
	"bytes"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/kv"
	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/internal/record"
)

// listCtx pages through a pool's objects with a start-after cursor so it
// never holds more than one page.
type listCtx struct {
	io *ioctx

	mu     sync.Mutex
	page   []kv.Entry
	after  kv.Key
	done   bool
	closed bool
}

var _ native.ListCtx = (*listCtx)(nil)

func (l *listCtx) Next() (entry, key, nspace string, status int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return "", "", "", errno(unix.EBADF)
	}
	if status := l.io.check(); status < 0 {
		return "", "", "", status
	}
	if status := l.io.b.faults.take(OpListNext, PhaseInitiate); status < 0 {
		return "", "", "", status
	}

	if len(l.page) == 0 && !l.done {
		l.io.b.mu.Lock()
		status := l.io.alive()
		var page []kv.Entry
		var err error
		if status == 0 {
			page, err = l.io.b.store.Scan(l.io.b.ctx(), objPrefix(l.io.poolID), l.after, l.io.b.cfg.PageSize)
		}
		l.io.b.mu.Unlock()
		if status < 0 {
			return "", "", "", status
		}
		if err != nil {
			return "", "", "", storeStatus(err)
		}
		if len(page) == 0 {
			l.done = true
		} else {
			l.page = page
			l.after = page[len(page)-1].Key
		}
	}

	if len(l.page) == 0 {
		return "", "", "", errno(unix.ENOENT)
	}
	e := l.page[0]
	l.page = l.page[1:]
	return e.Key.Last(), "", "", 0
}

func (l *listCtx) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.page = nil
	l.io.b.cursors.Add(-1)
}

type xattrsIter struct {
	b     *Backend
	attrs []record.Xattr
	pos   int
	ended bool
}

var _ native.XattrsIter = (*xattrsIter)(nil)

func (it *xattrsIter) Next() (string, []byte, int) {
	if it.ended {
		return "", nil, errno(unix.EBADF)
	}
	if status := it.b.faults.take(OpXattrNext, PhaseInitiate); status < 0 {
		return "", nil, status
	}
	if it.pos >= len(it.attrs) {
		return "", nil, 0
	}
	x := it.attrs[it.pos]
	it.pos++
	return x.Name, bytes.Clone(x.Value), 0
}

func (it *xattrsIter) End() {
	if it.ended {
		return
	}
	it.ended = true
	it.attrs = nil
	it.b.iters.Add(-1)
}
