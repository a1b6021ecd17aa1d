// Package sim implements internal/native as an in-process cluster. State is
// persisted through a kv.Store; asynchronous operations run on a fixed pool
// of dispatcher goroutines that mark the completion done and then invoke its
// callback, the same ordering librados guarantees.
package sim

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/kv"
	"github.com/objectfs/rados/internal/kv/memory"
	"github.com/objectfs/rados/internal/native"
)

const (
	DefaultWorkers  = 4
	DefaultPageSize = 64
	queueDepth      = 1024

	// DefaultMaxObjectSize matches the OSD default of 128 MiB.
	DefaultMaxObjectSize = 128 << 20
)

// Config configures a simulated cluster.
type Config struct {
	// Store persists pools, objects and snapshots. Defaults to an
	// in-memory store owned by the backend.
	Store kv.Store
	// Workers is the number of dispatcher goroutines.
	Workers int
	// Latency delays each asynchronous operation.
	Latency time.Duration
	// PageSize is the number of entries an object cursor fetches per scan.
	PageSize int
	// MaxObjectSize bounds object data. Writes and truncates past it
	// fail with -EFBIG.
	MaxObjectSize uint64
	// AllowedUsers restricts Connect when non-empty.
	AllowedUsers []string
	Logger       *slog.Logger
}

// Stats reports live native resources.
type Stats struct {
	Completions int64 // created and not yet released
	IoCtxs      int64
	ListCursors int64
	XattrIters  int64
	Clusters    int64 // connected handles
	Submitted   int64
	Callbacks   int64
}

// Backend is the shared cluster state. It implements native.Driver.
type Backend struct {
	cfg       Config
	store     kv.Store
	ownsStore bool
	logger    *slog.Logger

	// mu serializes read-modify-write sequences against the store.
	mu       sync.Mutex
	counters map[int64]*poolCounters

	qmu    sync.RWMutex
	queue  chan job
	closed bool
	wg     sync.WaitGroup
	// gate is write-locked while dispatch is paused.
	gate sync.RWMutex

	faults faultTable

	completions atomic.Int64
	ioctxs      atomic.Int64
	cursors     atomic.Int64
	iters       atomic.Int64
	clusters    atomic.Int64
	submitted   atomic.Int64
	callbacks   atomic.Int64
}

type poolCounters struct {
	rd, rdKB, wr, wrKB uint64
}

type job struct {
	c  *completion
	fn func() int
}

var _ native.Driver = (*Backend)(nil)

// New starts a simulated cluster.
func New(cfg Config) *Backend {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxObjectSize == 0 {
		cfg.MaxObjectSize = DefaultMaxObjectSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	b := &Backend{
		cfg:      cfg,
		store:    cfg.Store,
		logger:   logger,
		counters: make(map[int64]*poolCounters),
		queue:    make(chan job, queueDepth),
	}
	if b.store == nil {
		b.store = memory.New()
		b.ownsStore = true
	}

	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.dispatch()
	}
	logger.Debug("simulated cluster started", "workers", cfg.Workers, "page_size", cfg.PageSize)
	return b
}

// Create implements native.Driver.
func (b *Backend) Create(clusterName, userName string, _ uint64) (native.Cluster, int) {
	if status := b.faults.take(OpCreate, PhaseInitiate); status < 0 {
		return nil, status
	}
	return &cluster{b: b, name: clusterName, user: userName}, 0
}

// Close drains pending operations and stops the dispatchers. A store
// created by the backend is closed as well.
func (b *Backend) Close() error {
	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.qmu.Unlock()

	b.wg.Wait()
	if b.ownsStore {
		return b.store.Close()
	}
	return nil
}

// Stats returns a snapshot of live resources.
func (b *Backend) Stats() Stats {
	return Stats{
		Completions: b.completions.Load(),
		IoCtxs:      b.ioctxs.Load(),
		ListCursors: b.cursors.Load(),
		XattrIters:  b.iters.Load(),
		Clusters:    b.clusters.Load(),
		Submitted:   b.submitted.Load(),
		Callbacks:   b.callbacks.Load(),
	}
}

// Pause stops dispatchers from running queued operations until Resume.
// Operations already running finish first.
func (b *Backend) Pause() {
	b.gate.Lock()
}

// Resume undoes Pause.
func (b *Backend) Resume() {
	b.gate.Unlock()
}

// InjectFault arranges for the next Count matching calls to fail.
func (b *Backend) InjectFault(f Fault) {
	b.faults.add(f)
}

// ClearFaults removes all pending faults.
func (b *Backend) ClearFaults() {
	b.faults.clear()
}

// Store returns the backing store.
func (b *Backend) Store() kv.Store {
	return b.store
}

func (b *Backend) dispatch() {
	defer b.wg.Done()
	for j := range b.queue {
		b.gate.RLock()
		if b.cfg.Latency > 0 {
			time.Sleep(b.cfg.Latency)
		}
		status := j.fn()
		b.gate.RUnlock()

		j.c.finish(status)
		b.callbacks.Add(1)
	}
}

// submit queues fn to complete c. It returns the initiation status.
func (b *Backend) submit(op Op, c native.Completion, fn func() int) int {
	comp, ok := c.(*completion)
	if !ok || comp == nil || comp.b != b {
		return -int(unix.EINVAL)
	}
	if status := b.faults.take(op, PhaseInitiate); status < 0 {
		return status
	}
	if !comp.submitted.CompareAndSwap(false, true) {
		return -int(unix.EBUSY)
	}
	if status := b.faults.take(op, PhaseComplete); status < 0 {
		fn = func() int { return status }
	}

	b.qmu.RLock()
	defer b.qmu.RUnlock()
	if b.closed {
		return -int(unix.ESHUTDOWN)
	}
	b.submitted.Add(1)
	b.queue <- job{c: comp, fn: fn}
	return 0
}

func (b *Backend) ctx() context.Context {
	return context.Background()
}

func (b *Backend) counter(poolID int64) *poolCounters {
	pc, ok := b.counters[poolID]
	if !ok {
		pc = &poolCounters{}
		b.counters[poolID] = pc
	}
	return pc
}

func errno(e unix.Errno) int {
	return -int(e)
}
