package sim

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/kv"
	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/internal/record"
)

// snapshots returns the pool's snapshots in id order. Caller holds b.mu.
func (io *ioctx) snapshots() ([]record.Snapshot, int) {
	var out []record.Snapshot
	status := io.b.scanAll(snapPrefix(io.poolID), func(e kv.Entry) int {
		var s record.Snapshot
		if err := record.Unmarshal(e.Value, &s); err != nil {
			return errno(unix.EIO)
		}
		out = append(out, s)
		return 0
	})
	return out, status
}

func (io *ioctx) snapByName(name string) (*record.Snapshot, int) {
	snaps, status := io.snapshots()
	if status < 0 {
		return nil, status
	}
	for i := range snaps {
		if snaps[i].Name == name {
			return &snaps[i], 0
		}
	}
	return nil, errno(unix.ENOENT)
}

func (io *ioctx) snapByID(id native.SnapID) (*record.Snapshot, int) {
	var s record.Snapshot
	if status := io.b.loadRecord(snapKey(io.poolID, uint64(id)), &s); status < 0 {
		return nil, status
	}
	return &s, 0
}

// SnapCreate captures every object in the pool.
func (io *ioctx) SnapCreate(name string) int {
	if status := io.check(); status < 0 {
		return status
	}
	if name == "" {
		return errno(unix.EINVAL)
	}
	return io.locked(func() int {
		if _, status := io.snapByName(name); status == 0 {
			return errno(unix.EEXIST)
		} else if status != errno(unix.ENOENT) {
			return status
		}

		p, status := io.b.loadPool(io.pool)
		if status < 0 {
			return status
		}
		p.NextSnap++
		if status := io.b.saveRecord(poolKey(io.pool), p); status < 0 {
			return status
		}

		snap := &record.Snapshot{Version: record.Version, ID: p.NextSnap, Name: name, Created: time.Now().Unix()}
		if status := io.b.saveRecord(snapKey(io.poolID, snap.ID), snap); status < 0 {
			return status
		}

		dst := snapObjPrefix(io.poolID, snap.ID)
		return io.b.scanAll(objPrefix(io.poolID), func(e kv.Entry) int {
			if err := io.b.store.Put(io.b.ctx(), dst.Child(e.Key.Last()), e.Value); err != nil {
				return storeStatus(err)
			}
			return 0
		})
	})
}

func (io *ioctx) SnapRemove(name string) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.locked(func() int {
		snap, status := io.snapByName(name)
		if status < 0 {
			return status
		}
		if status := io.b.deletePrefix(snapObjPrefix(io.poolID, snap.ID)); status < 0 {
			return status
		}
		return storeStatus(io.b.store.Delete(io.b.ctx(), snapKey(io.poolID, snap.ID)))
	})
}

// SnapRollback restores oid from the snapshot. An object that did not exist
// when the snapshot was taken is removed.
func (io *ioctx) SnapRollback(oid string, snapName string) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.locked(func() int {
		snap, status := io.snapByName(snapName)
		if status < 0 {
			return status
		}

		data, err := io.b.store.Get(io.b.ctx(), snapObjPrefix(io.poolID, snap.ID).Child(oid))
		if err != nil {
			status := storeStatus(err)
			if status != errno(unix.ENOENT) {
				return status
			}
			return storeStatus(io.b.store.Delete(io.b.ctx(), objKey(io.poolID, oid)))
		}

		var o record.Object
		if err := record.Unmarshal(data, &o); err != nil {
			return errno(unix.EIO)
		}
		o.Touch(time.Now())
		return io.b.saveRecord(objKey(io.poolID, oid), &o)
	})
}

func (io *ioctx) SnapList(ids []native.SnapID) int {
	if status := io.check(); status < 0 {
		return status
	}
	if status := io.b.faults.take(OpSnapList, PhaseInitiate); status < 0 {
		return status
	}
	return io.locked(func() int {
		snaps, status := io.snapshots()
		if status < 0 {
			return status
		}
		if len(snaps) > len(ids) {
			return errno(unix.ERANGE)
		}
		for i, s := range snaps {
			ids[i] = native.SnapID(s.ID)
		}
		return len(snaps)
	})
}

func (io *ioctx) SnapLookup(name string, id *native.SnapID) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.locked(func() int {
		snap, status := io.snapByName(name)
		if status < 0 {
			return status
		}
		if id != nil {
			*id = native.SnapID(snap.ID)
		}
		return 0
	})
}

func (io *ioctx) SnapGetName(id native.SnapID, buf []byte) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.locked(func() int {
		snap, status := io.snapByID(id)
		if status < 0 {
			return status
		}
		if len(snap.Name)+1 > len(buf) {
			return errno(unix.ERANGE)
		}
		n := copy(buf, snap.Name)
		buf[n] = 0
		return 0
	})
}

func (io *ioctx) SnapGetStamp(id native.SnapID, t *int64) int {
	if status := io.check(); status < 0 {
		return status
	}
	return io.locked(func() int {
		snap, status := io.snapByID(id)
		if status < 0 {
			return status
		}
		if t != nil {
			*t = snap.Created
		}
		return 0
	})
}
