package rados

import (
	"bytes"
	"context"
	"math"
	"time"

	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/pkg/errors"
)

const (
	snapListInitial = 16
	snapListCeiling = math.MaxInt32
	snapNameBufSize = 256
)

// SnapID identifies a pool snapshot.
type SnapID = native.SnapID

// SnapshotInfo describes one pool snapshot.
type SnapshotInfo struct {
	ID      SnapID    `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// PoolStat holds a pool's usage counters.
type PoolStat struct {
	NumBytes                   uint64 `json:"num_bytes"`
	NumKB                      uint64 `json:"num_kb"`
	NumObjects                 uint64 `json:"num_objects"`
	NumObjectClones            uint64 `json:"num_object_clones"`
	NumObjectCopies            uint64 `json:"num_object_copies"`
	NumObjectsMissingOnPrimary uint64 `json:"num_objects_missing_on_primary"`
	NumObjectsUnfound          uint64 `json:"num_objects_unfound"`
	NumObjectsDegraded         uint64 `json:"num_objects_degraded"`
	NumRd                      uint64 `json:"num_rd"`
	NumRdKB                    uint64 `json:"num_rd_kb"`
	NumWr                      uint64 `json:"num_wr"`
	NumWrKB                    uint64 `json:"num_wr_kb"`
	NumUserBytes               uint64 `json:"num_user_bytes"`
	CompressedBytesOrig        uint64 `json:"compressed_bytes_orig"`
	CompressedBytes            uint64 `json:"compressed_bytes"`
	CompressedBytesAlloc       uint64 `json:"compressed_bytes_alloc"`
}

// Pool names a pool on a cluster. It holds no native resources; each
// operation opens and closes its own pool context.
type Pool struct {
	c    *Cluster
	name string
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Cluster returns the owning cluster.
func (p *Pool) Cluster() *Cluster { return p.c }

// Object returns a handle for the named object without contacting the
// cluster.
func (p *Pool) Object(name string) *Object {
	return &Object{p: p, name: name}
}

// ioctx opens a pool context scoped to one operation. done destroys it and
// drops the session reference, and must be called exactly once.
func (p *Pool) ioctx(op string) (native.IoCtx, func(), error) {
	if err := checkName(op, "pool", p.name); err != nil {
		return nil, nil, err
	}
	release, err := p.c.acquire(op)
	if err != nil {
		return nil, nil, err
	}
	io, status := p.c.h.IoCtxCreate(p.name)
	if status < 0 || io == nil {
		release()
		return nil, nil, poolError(op, p.name, status)
	}
	return io, func() {
		io.Destroy()
		release()
	}, nil
}

// withIoCtx runs a synchronous pool-context call.
func (p *Pool) withIoCtx(ctx context.Context, op string, fn func(io native.IoCtx) error) error {
	if err := ctx.Err(); err != nil {
		return canceled(op, err)
	}
	io, done, err := p.ioctx(op)
	if err != nil {
		return err
	}
	defer done()
	start := time.Now()
	err = fn(io)
	p.c.observe(op, start, 0, err, "pool", p.name)
	return err
}

// GetObject returns a handle for an object after confirming it exists.
func (p *Pool) GetObject(ctx context.Context, name string) (*Object, error) {
	obj := p.Object(name)
	if _, err := obj.Stat(ctx); err != nil {
		return nil, err
	}
	return obj, nil
}

// PutObject replaces the object's content with data.
func (p *Pool) PutObject(ctx context.Context, name string, data []byte) (*Object, error) {
	obj := p.Object(name)
	if _, err := obj.WriteFull(ctx, data); err != nil {
		return nil, err
	}
	return obj, nil
}

// CreateObject creates an empty object, truncating any existing one.
func (p *Pool) CreateObject(ctx context.Context, name string) (*Object, error) {
	return p.PutObject(ctx, name, nil)
}

// RemoveObject removes the named object.
func (p *Pool) RemoveObject(ctx context.Context, name string) error {
	return p.Object(name).Remove(ctx)
}

// Stat returns the pool's usage counters.
func (p *Pool) Stat(ctx context.Context) (PoolStat, error) {
	const op = "pool_stat"
	var st native.PoolStat
	err := p.withIoCtx(ctx, op, func(io native.IoCtx) error {
		return poolError(op, p.name, io.PoolStat(&st))
	})
	return PoolStat(st), err
}

// SnapshotCreate takes a pool snapshot.
func (p *Pool) SnapshotCreate(ctx context.Context, name string) error {
	return p.snapCall(ctx, "snap_create", name, func(io native.IoCtx) int { return io.SnapCreate(name) })
}

// SnapshotRemove deletes a pool snapshot.
func (p *Pool) SnapshotRemove(ctx context.Context, name string) error {
	return p.snapCall(ctx, "snap_remove", name, func(io native.IoCtx) int { return io.SnapRemove(name) })
}

// SnapshotRollback restores one object to its state in the named snapshot.
func (p *Pool) SnapshotRollback(ctx context.Context, object, snap string) error {
	const op = "snap_rollback"
	if err := checkName(op, "object", object); err != nil {
		return err
	}
	return p.snapCall(ctx, op, snap, func(io native.IoCtx) int { return io.SnapRollback(object, snap) }, "object", object)
}

// SnapshotLookup returns the id of the named snapshot.
func (p *Pool) SnapshotLookup(ctx context.Context, name string) (SnapID, error) {
	var id SnapID
	err := p.snapCall(ctx, "snap_lookup", name, func(io native.IoCtx) int { return io.SnapLookup(name, &id) })
	return id, err
}

func (p *Pool) snapCall(ctx context.Context, op, snap string, call func(native.IoCtx) int, kv ...string) error {
	if err := checkName(op, "snapshot", snap); err != nil {
		return err
	}
	return p.withIoCtx(ctx, op, func(io native.IoCtx) error {
		return statusError(op, call(io), append([]string{"pool", p.name, "snapshot", snap}, kv...)...)
	})
}

// SnapshotList returns the ids of all pool snapshots.
func (p *Pool) SnapshotList(ctx context.Context) ([]SnapID, error) {
	const op = "snap_list"
	var ids []SnapID
	err := p.withIoCtx(ctx, op, func(io native.IoCtx) error {
		var err error
		ids, err = grow(ctx, p.c, op, snapListInitial, snapListCeiling, func(n int) ([]SnapID, error) {
			buf := make([]SnapID, n)
			count := io.SnapList(buf)
			if count < 0 {
				return nil, statusError(op, count, "pool", p.name)
			}
			return buf[:count], nil
		})
		return err
	})
	return ids, err
}

// SnapshotName returns the name of a snapshot.
func (p *Pool) SnapshotName(ctx context.Context, id SnapID) (string, error) {
	const op = "snap_get_name"
	var name string
	err := p.withIoCtx(ctx, op, func(io native.IoCtx) error {
		var err error
		name, err = p.snapName(io, op, id)
		return err
	})
	return name, err
}

func (p *Pool) snapName(io native.IoCtx, op string, id SnapID) (string, error) {
	buf := make([]byte, snapNameBufSize)
	if status := io.SnapGetName(id, buf); status < 0 {
		return "", statusError(op, status, "pool", p.name)
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return lossy(string(buf)), nil
}

// SnapshotStamp returns when a snapshot was taken.
func (p *Pool) SnapshotStamp(ctx context.Context, id SnapID) (time.Time, error) {
	const op = "snap_get_stamp"
	var sec int64
	err := p.withIoCtx(ctx, op, func(io native.IoCtx) error {
		return statusError(op, io.SnapGetStamp(id, &sec), "pool", p.name)
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}

// Snapshots lists every snapshot with its name and creation time.
func (p *Pool) Snapshots(ctx context.Context) ([]SnapshotInfo, error) {
	ids, err := p.SnapshotList(ctx)
	if err != nil {
		return nil, err
	}
	const op = "snap_info"
	infos := make([]SnapshotInfo, 0, len(ids))
	err = p.withIoCtx(ctx, op, func(io native.IoCtx) error {
		for _, id := range ids {
			name, err := p.snapName(io, op, id)
			if errors.IsNotFound(err) {
				// Removed since the list was taken.
				continue
			}
			if err != nil {
				return err
			}
			var sec int64
			status := io.SnapGetStamp(id, &sec)
			if status < 0 {
				err := statusError(op, status, "pool", p.name)
				if errors.IsNotFound(err) {
					continue
				}
				return err
			}
			infos = append(infos, SnapshotInfo{ID: id, Name: name, Created: time.Unix(sec, 0)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}
