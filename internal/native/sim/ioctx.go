package sim

import (
	"bytes"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/kv"
	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/internal/record"
)

type ioctx struct {
	b         *Backend
	c         *cluster
	pool      string
	poolID    int64
	destroyed atomic.Bool
}

var _ native.IoCtx = (*ioctx)(nil)

func (io *ioctx) Destroy() {
	if io.destroyed.CompareAndSwap(false, true) {
		io.b.ioctxs.Add(-1)
	}
}

// check validates the context before initiation.
func (io *ioctx) check() int {
	if io.destroyed.Load() {
		return errno(unix.EBADF)
	}
	if !io.c.connected() {
		return errno(unix.ENOTCONN)
	}
	return 0
}

// alive reports -ENOENT once the pool was deleted. Caller holds b.mu.
func (io *ioctx) alive() int {
	p, status := io.b.loadPool(io.pool)
	if status < 0 {
		return status
	}
	if p.ID != io.poolID {
		return errno(unix.ENOENT)
	}
	return 0
}

// locked runs fn under the backend lock after checking the pool.
func (io *ioctx) locked(fn func() int) int {
	io.b.mu.Lock()
	defer io.b.mu.Unlock()
	if status := io.alive(); status < 0 {
		return status
	}
	return fn()
}

// mutate loads oid (creating it when create is set), applies fn, stamps
// the mtime and stores it back.
func (io *ioctx) mutate(oid string, create bool, fn func(o *record.Object) int) int {
	return io.locked(func() int {
		o, status := io.b.loadObject(io.poolID, oid)
		if status == errno(unix.ENOENT) && create {
			o, status = &record.Object{Version: record.Version}, 0
		}
		if status < 0 {
			return status
		}
		if status := fn(o); status < 0 {
			return status
		}
		o.Touch(time.Now())
		return io.b.saveRecord(objKey(io.poolID, oid), o)
	})
}

// fits reports whether an object may grow to off+n bytes.
func (io *ioctx) fits(off, n uint64) bool {
	end := off + n
	return end >= off && end <= io.b.cfg.MaxObjectSize
}

func (io *ioctx) countWrite(n int) {
	pc := io.b.counter(io.poolID)
	pc.wr++
	pc.wrKB += uint64((n + 1023) / 1024)
}

func (io *ioctx) AioRead(oid string, c native.Completion, buf []byte, off uint64) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.b.submit(OpRead, c, func() int {
		return io.locked(func() int {
			o, status := io.b.loadObject(io.poolID, oid)
			if status < 0 {
				return status
			}
			n := 0
			if off < uint64(len(o.Data)) {
				n = copy(buf, o.Data[off:])
			}
			pc := io.b.counter(io.poolID)
			pc.rd++
			pc.rdKB += uint64((n + 1023) / 1024)
			return n
		})
	})
}

func (io *ioctx) AioWrite(oid string, c native.Completion, data []byte, off uint64) int {
	if status := io.check(); status < 0 {
		return status
	}
	data = bytes.Clone(data)
	return io.b.submit(OpWrite, c, func() int {
		return io.mutate(oid, true, func(o *record.Object) int {
			if !io.fits(off, uint64(len(data))) {
				return errno(unix.EFBIG)
			}
			end := off + uint64(len(data))
			if end > uint64(len(o.Data)) {
				grown := make([]byte, end)
				copy(grown, o.Data)
				o.Data = grown
			}
			copy(o.Data[off:], data)
			io.countWrite(len(data))
			return 0
		})
	})
}

func (io *ioctx) AioWriteFull(oid string, c native.Completion, data []byte) int {
	if status := io.check(); status < 0 {
		return status
	}
	data = bytes.Clone(data)
	return io.b.submit(OpWriteFull, c, func() int {
		return io.mutate(oid, true, func(o *record.Object) int {
			if !io.fits(0, uint64(len(data))) {
				return errno(unix.EFBIG)
			}
			o.Data = data
			io.countWrite(len(data))
			return 0
		})
	})
}

func (io *ioctx) AioAppend(oid string, c native.Completion, data []byte) int {
	if status := io.check(); status < 0 {
		return status
	}
	data = bytes.Clone(data)
	return io.b.submit(OpAppend, c, func() int {
		return io.mutate(oid, true, func(o *record.Object) int {
			if !io.fits(uint64(len(o.Data)), uint64(len(data))) {
				return errno(unix.EFBIG)
			}
			o.Data = append(o.Data, data...)
			io.countWrite(len(data))
			return 0
		})
	})
}

func (io *ioctx) AioRemove(oid string, c native.Completion) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.b.submit(OpRemove, c, func() int {
		return io.locked(func() int {
			return storeStatus(io.b.store.Delete(io.b.ctx(), objKey(io.poolID, oid)))
		})
	})
}

func (io *ioctx) AioStat(oid string, c native.Completion, psize *uint64, pmtime *native.Timespec) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.b.submit(OpStat, c, func() int {
		return io.locked(func() int {
			o, status := io.b.loadObject(io.poolID, oid)
			if status < 0 {
				return status
			}
			if psize != nil {
				*psize = uint64(len(o.Data))
			}
			if pmtime != nil {
				*pmtime = native.Timespec{Sec: o.MtimeSec, Nsec: o.MtimeNsec}
			}
			return 0
		})
	})
}

func (io *ioctx) AioGetXattr(oid string, c native.Completion, name string, buf []byte) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.b.submit(OpGetXattr, c, func() int {
		return io.locked(func() int {
			o, status := io.b.loadObject(io.poolID, oid)
			if status < 0 {
				return status
			}
			v, ok := o.Xattr(name)
			if !ok {
				return errno(unix.ENODATA)
			}
			if len(v) > len(buf) {
				return errno(unix.ERANGE)
			}
			return copy(buf, v)
		})
	})
}

func (io *ioctx) AioGetXattrs(oid string, c native.Completion, iter *native.XattrsIter) int {
	if status := io.check(); status < 0 {
		return status
	}
	if iter == nil {
		return errno(unix.EINVAL)
	}
	return io.b.submit(OpGetXattrs, c, func() int {
		return io.locked(func() int {
			o, status := io.b.loadObject(io.poolID, oid)
			if status < 0 {
				return status
			}
			io.b.iters.Add(1)
			*iter = &xattrsIter{b: io.b, attrs: o.Xattrs}
			return 0
		})
	})
}

func (io *ioctx) AioSetXattr(oid string, c native.Completion, name string, value []byte) int {
	if status := io.check(); status < 0 {
		return status
	}
	if name == "" {
		return errno(unix.EINVAL)
	}
	value = bytes.Clone(value)
	return io.b.submit(OpSetXattr, c, func() int {
		return io.mutate(oid, true, func(o *record.Object) int {
			o.SetXattr(name, value)
			return 0
		})
	})
}

func (io *ioctx) AioRmXattr(oid string, c native.Completion, name string) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.b.submit(OpRmXattr, c, func() int {
		return io.mutate(oid, false, func(o *record.Object) int {
			if !o.RemoveXattr(name) {
				return errno(unix.ENODATA)
			}
			return 0
		})
	})
}

func (io *ioctx) Trunc(oid string, size uint64) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.mutate(oid, false, func(o *record.Object) int {
		if size <= uint64(len(o.Data)) {
			o.Data = o.Data[:size]
			return 0
		}
		if !io.fits(size, 0) {
			return errno(unix.EFBIG)
		}
		grown := make([]byte, size)
		copy(grown, o.Data)
		o.Data = grown
		return 0
	})
}

func (io *ioctx) PoolStat(st *native.PoolStat) int {
	if status := io.check(); status < 0 {
		return status
	}
	if st == nil {
		return errno(unix.EINVAL)
	}
	return io.locked(func() int {
		var out native.PoolStat
		status := io.b.scanAll(objPrefix(io.poolID), func(e kv.Entry) int {
			var o record.Object
			if err := record.Unmarshal(e.Value, &o); err != nil {
				return errno(unix.EIO)
			}
			out.NumObjects++
			out.NumBytes += uint64(len(o.Data))
			return 0
		})
		if status < 0 {
			return status
		}
		var clones uint64
		status = io.b.scanAll(kv.Key{"snapobj", formatID(io.poolID)}, func(kv.Entry) int {
			clones++
			return 0
		})
		if status < 0 {
			return status
		}

		pc := io.b.counter(io.poolID)
		out.NumKB = (out.NumBytes + 1023) / 1024
		out.NumObjectClones = clones
		out.NumObjectCopies = out.NumObjects
		out.NumUserBytes = out.NumBytes
		out.NumRd, out.NumRdKB = pc.rd, pc.rdKB
		out.NumWr, out.NumWrKB = pc.wr, pc.wrKB
		*st = out
		return 0
	})
}

func (io *ioctx) NObjectsListOpen() (native.ListCtx, int) {
	if status := io.check(); status < 0 {
		return nil, status
	}
	if status := io.b.faults.take(OpListOpen, PhaseInitiate); status < 0 {
		return nil, status
	}
	io.b.cursors.Add(1)
	return &listCtx{io: io}, 0
}
