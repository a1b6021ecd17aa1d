// Package native defines the boundary between the client and a cluster
// backend. The interfaces mirror the librados C API: every call returns a
// signed status where values >= 0 are success (often a length or count)
// and values < 0 are a negated errno.
//
// Asynchronous calls take a Completion created by Cluster.CreateCompletion.
// An initiation status of 0 means the operation was submitted and the
// completion callback will fire exactly once. A negative initiation status
// means the operation failed synchronously and the callback never fires.
//
// Names are passed as Go strings. Callers must reject names that contain
// NUL before crossing this boundary.
package native

// Callback is invoked by the backend on one of its own goroutines after the
// completion has been marked complete. arg is the value passed to
// CreateCompletion.
type Callback func(c Completion, arg any)

// SnapID identifies a pool snapshot.
type SnapID uint64

// Timespec is a modification time as seconds and nanoseconds.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// PoolStat holds pool usage counters.
type PoolStat struct {
	NumBytes                   uint64
	NumKB                      uint64
	NumObjects                 uint64
	NumObjectClones            uint64
	NumObjectCopies            uint64
	NumObjectsMissingOnPrimary uint64
	NumObjectsUnfound          uint64
	NumObjectsDegraded         uint64
	NumRd                      uint64
	NumRdKB                    uint64
	NumWr                      uint64
	NumWrKB                    uint64
	NumUserBytes               uint64
	CompressedBytesOrig        uint64
	CompressedBytes            uint64
	CompressedBytesAlloc       uint64
}

// Cluster is a handle to a cluster session.
type Cluster interface {
	// ConfReadFile loads client configuration. An empty path is allowed.
	ConfReadFile(path string) int
	// Connect establishes the session.
	Connect() int
	// Shutdown tears down the session. No other call may follow.
	Shutdown()

	// PoolList writes NUL-terminated pool names into buf followed by an
	// extra NUL. It returns the length required for the full list, which
	// may exceed len(buf); in that case buf holds a truncated prefix.
	PoolList(buf []byte) int
	PoolCreate(name string) int
	PoolDelete(name string) int
	// PoolLookup returns the pool id or a negative status.
	PoolLookup(name string) int64

	// IoCtxCreate opens a per-pool I/O context.
	IoCtxCreate(pool string) (IoCtx, int)
	// CreateCompletion allocates a completion whose callback receives arg.
	CreateCompletion(arg any, cb Callback) (Completion, int)
}

// Completion tracks one asynchronous operation.
type Completion interface {
	// IsComplete reports whether the operation has finished.
	IsComplete() bool
	// ReturnValue is the operation's status. Valid once IsComplete is true.
	ReturnValue() int
	// WaitForComplete blocks until the operation has finished.
	WaitForComplete()
	// Release frees the completion. Releasing an incomplete completion is
	// allowed; the callback will still run but the result is discarded.
	Release()
}

// IoCtx is a per-pool I/O context.
type IoCtx interface {
	Destroy()

	// AioRead fills buf from off. The completion returns the byte count.
	// buf is owned by the backend until the completion finishes.
	AioRead(oid string, c Completion, buf []byte, off uint64) int
	// AioWrite copies data at submission time.
	AioWrite(oid string, c Completion, data []byte, off uint64) int
	AioWriteFull(oid string, c Completion, data []byte) int
	AioAppend(oid string, c Completion, data []byte) int
	AioRemove(oid string, c Completion) int
	// AioStat stores the size and mtime before the completion finishes.
	AioStat(oid string, c Completion, psize *uint64, pmtime *Timespec) int

	// AioGetXattr copies the value into buf and completes with its length,
	// or -ERANGE if buf is too small.
	AioGetXattr(oid string, c Completion, name string, buf []byte) int
	// AioGetXattrs stores an attribute iterator that the caller must End.
	AioGetXattrs(oid string, c Completion, iter *XattrsIter) int
	AioSetXattr(oid string, c Completion, name string, value []byte) int
	AioRmXattr(oid string, c Completion, name string) int

	// Trunc resizes an object synchronously.
	Trunc(oid string, size uint64) int

	// PoolStat fills st with the pool's counters.
	PoolStat(st *PoolStat) int

	SnapCreate(name string) int
	SnapRemove(name string) int
	// SnapRollback restores oid to its state in the named snapshot.
	SnapRollback(oid string, snapName string) int
	// SnapList fills ids and returns the count, or -ERANGE if ids is too short.
	SnapList(ids []SnapID) int
	SnapLookup(name string, id *SnapID) int
	// SnapGetName writes the NUL-terminated name into buf, or returns
	// -ERANGE if it does not fit.
	SnapGetName(id SnapID, buf []byte) int
	SnapGetStamp(id SnapID, t *int64) int

	// NObjectsListOpen opens a forward-only object cursor.
	NObjectsListOpen() (ListCtx, int)
}

// ListCtx is an object enumeration cursor.
type ListCtx interface {
	// Next returns the next entry. The status is -ENOENT at the end of the
	// sequence and another negative value on failure.
	Next() (entry, key, nspace string, status int)
	Close()
}

// XattrsIter walks an object's attributes.
type XattrsIter interface {
	// Next returns the next attribute. An empty name marks the end.
	Next() (name string, value []byte, status int)
	End()
}

// Driver creates cluster handles. It is the equivalent of rados_create2.
type Driver interface {
	Create(clusterName, userName string, flags uint64) (Cluster, int)
}
