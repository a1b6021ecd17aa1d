package sim

import (
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/kv"
	"github.com/objectfs/rados/internal/record"
)

// Key layout:
//
//	cluster                        record.Cluster
//	pool/<name>                    record.Pool
//	obj/<pool id>/<oid>            record.Object
//	snap/<pool id>/<snap id>       record.Snapshot
//	snapobj/<pool id>/<snap id>/<oid>  record.Object
var clusterKey = kv.Key{"cluster"}

func poolKey(name string) kv.Key { return kv.Key{"pool", name} }

func poolPrefix() kv.Key { return kv.Key{"pool"} }

func objPrefix(poolID int64) kv.Key { return kv.Key{"obj", formatID(poolID)} }

func objKey(poolID int64, oid string) kv.Key { return objPrefix(poolID).Child(oid) }

func snapPrefix(poolID int64) kv.Key { return kv.Key{"snap", formatID(poolID)} }

func snapKey(poolID int64, id uint64) kv.Key { return snapPrefix(poolID).Child(formatSnap(id)) }

func snapObjPrefix(poolID int64, id uint64) kv.Key {
	return kv.Key{"snapobj", formatID(poolID), formatSnap(id)}
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// formatSnap zero-pads so lexical order matches numeric order.
func formatSnap(id uint64) string { return fmt.Sprintf("%020d", id) }

// storeStatus maps a store error onto a native status.
func storeStatus(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, kv.ErrNotFound):
		return errno(unix.ENOENT)
	case errors.Is(err, kv.ErrClosed):
		return errno(unix.ESHUTDOWN)
	default:
		return errno(unix.EIO)
	}
}

func (b *Backend) loadRecord(key kv.Key, v any) int {
	data, err := b.store.Get(b.ctx(), key)
	if err != nil {
		return storeStatus(err)
	}
	if err := record.Unmarshal(data, v); err != nil {
		b.logger.Error("corrupt record", "key", key.String(), "error", err)
		return errno(unix.EIO)
	}
	return 0
}

func (b *Backend) saveRecord(key kv.Key, v any) int {
	data, err := record.Marshal(v)
	if err != nil {
		return errno(unix.EIO)
	}
	if err := b.store.Put(b.ctx(), key, data); err != nil {
		return storeStatus(err)
	}
	return 0
}

func (b *Backend) loadPool(name string) (*record.Pool, int) {
	var p record.Pool
	if status := b.loadRecord(poolKey(name), &p); status < 0 {
		return nil, status
	}
	return &p, 0
}

func (b *Backend) loadObject(poolID int64, oid string) (*record.Object, int) {
	var o record.Object
	if status := b.loadRecord(objKey(poolID, oid), &o); status < 0 {
		return nil, status
	}
	return &o, 0
}

// deletePrefix removes every key under prefix.
func (b *Backend) deletePrefix(prefix kv.Key) int {
	for {
		entries, err := b.store.Scan(b.ctx(), prefix, nil, 256)
		if err != nil {
			return storeStatus(err)
		}
		if len(entries) == 0 {
			return 0
		}
		for _, e := range entries {
			if err := b.store.Delete(b.ctx(), e.Key); err != nil && !errors.Is(err, kv.ErrNotFound) {
				return storeStatus(err)
			}
		}
	}
}

// scanAll visits every entry under prefix in order.
func (b *Backend) scanAll(prefix kv.Key, fn func(kv.Entry) int) int {
	var after kv.Key
	for {
		entries, err := b.store.Scan(b.ctx(), prefix, after, b.cfg.PageSize)
		if err != nil {
			return storeStatus(err)
		}
		if len(entries) == 0 {
			return 0
		}
		for _, e := range entries {
			if status := fn(e); status < 0 {
				return status
			}
		}
		after = entries[len(entries)-1].Key
	}
}
