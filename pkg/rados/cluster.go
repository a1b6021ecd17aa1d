// Package rados is a client for a RADOS-style distributed object store.
//
// A Cluster owns the session with the storage cluster. Pools and objects
// are lightweight names resolved against it; every operation opens its own
// pool context and completion, so handles may be shared freely between
// goroutines. Blocking operations take a context. Abandoning one leaves
// the backend operation running; its resources are reclaimed when it
// completes.
//
//	cl, err := rados.Connect(ctx, rados.Options{Driver: driver, User: "client.admin"})
//	if err != nil {
//		return err
//	}
//	defer cl.Close()
//
//	obj := cl.Pool("data").Object("greeting")
//	if _, err := obj.WriteFull(ctx, []byte("hello")); err != nil {
//		return err
//	}
package rados

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/metrics"
	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/pkg/errors"
	"github.com/objectfs/rados/pkg/retry"
	"github.com/objectfs/rados/pkg/utils"
)

const component = "rados"

// Defaults applied by Connect.
const (
	DefaultClusterName = "ceph"
	DefaultUser        = "client.admin"

	poolListInitialSize = 500
)

// Options configures Connect.
type Options struct {
	// Driver creates the native cluster handle. Required.
	Driver native.Driver
	// ClusterName defaults to DefaultClusterName.
	ClusterName string
	// User defaults to DefaultUser.
	User string
	// ConfigFile is read into the handle before connecting when set.
	ConfigFile string
	// Flags are passed to the driver unchanged.
	Flags uint64

	Logger  *slog.Logger
	Metrics *metrics.Collector
	// Retry controls connect attempts. The zero value uses
	// retry.DefaultConfig.
	Retry retry.Config
}

// Cluster is a connected session. It is safe for concurrent use.
type Cluster struct {
	h       native.Cluster
	name    string
	user    string
	logger  *slog.Logger
	metrics *metrics.Collector

	mu       sync.RWMutex
	closed   bool
	shutdown bool
	inflight sync.WaitGroup
	pending  atomic.Int64
}

// shutdownReport is how often a blocked Shutdown logs what it waits on.
var shutdownReport = 5 * time.Second

// Connect creates a cluster handle, loads the optional configuration file
// and connects, retrying transient failures.
func Connect(ctx context.Context, opts Options) (*Cluster, error) {
	if opts.Driver == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "no cluster driver configured").
			WithComponent(component).WithOperation("connect")
	}
	if opts.ClusterName == "" {
		opts.ClusterName = DefaultClusterName
	}
	if opts.User == "" {
		opts.User = DefaultUser
	}
	for _, name := range []string{opts.ClusterName, opts.User, opts.ConfigFile} {
		if err := checkName("connect", "name", name); err != nil {
			return nil, err
		}
	}
	logger := utils.OrDiscard(opts.Logger).With("component", component, "cluster", opts.ClusterName)

	h, status := opts.Driver.Create(opts.ClusterName, opts.User, opts.Flags)
	if status < 0 || h == nil {
		return nil, connectError("failed to create cluster handle", status, nil)
	}

	if opts.ConfigFile != "" {
		if status := h.ConfReadFile(opts.ConfigFile); status < 0 {
			h.Shutdown()
			return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to read cluster configuration").
				WithComponent(component).
				WithOperation("connect").
				WithContext("path", opts.ConfigFile).
				WithCause(errors.FromStatus(status))
		}
	}

	cfg := opts.Retry
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig()
	}
	retryer := retry.New(cfg).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Warn("connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	})

	start := time.Now()
	err := retryer.DoWithContext(ctx, func(context.Context) error {
		return errors.FromStatus(h.Connect())
	})
	if err != nil {
		h.Shutdown()
		opts.Metrics.RecordOperation("connect", time.Since(start), 0, err)
		return nil, connectError("failed to connect to cluster", errors.StatusOf(err), err)
	}
	opts.Metrics.RecordOperation("connect", time.Since(start), 0, nil)
	opts.Metrics.UpdateConnections(1)
	logger.Info("connected", "user", opts.User, "duration", time.Since(start))

	return &Cluster{
		h:       h,
		name:    opts.ClusterName,
		user:    opts.User,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

func connectError(msg string, status int, cause error) error {
	e := errors.NewError(errors.ErrCodeConnectionFailed, msg).
		WithComponent(component).
		WithOperation("connect")
	e.Status = status
	switch {
	case cause != nil:
		e.WithCause(cause)
	case status < 0:
		e.WithCause(errors.FromStatus(status))
	}
	return e
}

// Name returns the cluster name.
func (c *Cluster) Name() string { return c.name }

// User returns the user the session authenticated as.
func (c *Cluster) User() string { return c.user }

// acquire takes a reference on the session for the duration of one
// operation. The returned func drops it.
func (c *Cluster) acquire(op string) (func(), error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errors.NewError(errors.ErrCodeClusterClosed, "cluster handle is shut down").
			WithComponent(component).WithOperation(op)
	}
	c.inflight.Add(1)
	c.pending.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			c.pending.Add(-1)
			c.inflight.Done()
		})
	}, nil
}

// Shutdown stops new operations, waits for in-flight ones to finish and
// then tears down the session. An operation is in flight until its Future
// is released or its ObjectIterator closed or drained. If ctx ends first,
// new operations are still refused but the session stays open until
// Shutdown is called again. While blocked it logs the number of
// operations it is waiting on.
func (c *Cluster) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(drained)
	}()
	tick := time.NewTicker(shutdownReport)
	defer tick.Stop()
wait:
	for {
		select {
		case <-drained:
			break wait
		case <-tick.C:
			c.logger.Warn("shutdown waiting for operations", "in_flight", c.pending.Load())
		case <-ctx.Done():
			n := c.pending.Load()
			c.logger.Error("shutdown abandoned with operations in flight", "error", ctx.Err(), "in_flight", n)
			return errors.NewError(errors.ErrCodeOperationCanceled, "shutdown abandoned with operations in flight").
				WithComponent(component).
				WithOperation("shutdown").
				WithContext("in_flight", strconv.FormatInt(n, 10)).
				WithCause(ctx.Err())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return nil
	}
	c.shutdown = true
	c.h.Shutdown()
	c.metrics.UpdateConnections(-1)
	c.logger.Info("shut down")
	return nil
}

// Close is Shutdown without a deadline. It blocks until every Async Future
// has been released and every ObjectIterator closed or drained.
func (c *Cluster) Close() error {
	return c.Shutdown(context.Background())
}

// Pool returns a handle for the named pool without checking that it exists.
func (c *Cluster) Pool(name string) *Pool {
	return &Pool{c: c, name: name}
}

// PoolLookup returns the id of the named pool.
func (c *Cluster) PoolLookup(ctx context.Context, name string) (int64, error) {
	const op = "pool_lookup"
	var id int64
	err := c.admin(ctx, op, name, func() int {
		id = c.h.PoolLookup(name)
		if id < 0 {
			return int(id)
		}
		return 0
	})
	return id, err
}

// PoolCreate creates a pool.
func (c *Cluster) PoolCreate(ctx context.Context, name string) error {
	return c.admin(ctx, "pool_create", name, func() int { return c.h.PoolCreate(name) })
}

// PoolDelete deletes a pool and everything in it.
func (c *Cluster) PoolDelete(ctx context.Context, name string) error {
	return c.admin(ctx, "pool_delete", name, func() int { return c.h.PoolDelete(name) })
}

// admin runs a synchronous pool administration call.
func (c *Cluster) admin(ctx context.Context, op, pool string, call func() int) error {
	if err := ctx.Err(); err != nil {
		return canceled(op, err)
	}
	if err := checkName(op, "pool", pool); err != nil {
		return err
	}
	release, err := c.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	status := call()
	err = poolError(op, pool, status)
	c.observe(op, start, 0, err, "pool", pool)
	return err
}

// ListPools returns the names of all pools.
func (c *Cluster) ListPools(ctx context.Context) ([]string, error) {
	const op = "pool_list"
	if err := ctx.Err(); err != nil {
		return nil, canceled(op, err)
	}
	release, err := c.acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	names, err := c.listPools()
	c.observe(op, start, 0, err)
	return names, err
}

func (c *Cluster) listPools() ([]string, error) {
	const op = "pool_list"
	buf := make([]byte, poolListInitialSize)
	n := c.h.PoolList(buf)
	if n < 0 {
		return nil, statusError(op, n)
	}
	if n > len(buf) {
		// The backend reports the exact length needed.
		buf = make([]byte, n)
		n = c.h.PoolList(buf)
		if n < 0 {
			return nil, statusError(op, n)
		}
		if n > len(buf) {
			return nil, errors.NewError(errors.ErrCodeSizeExceeded, "pool list grew while it was being read").
				WithComponent(component).
				WithOperation(op).
				WithDetail("required", n)
		}
	}
	return parsePoolList(buf[:n]), nil
}

// parsePoolList splits a NUL-separated pool list. Empty segments, including
// the terminating one, are dropped.
func parsePoolList(buf []byte) []string {
	var names []string
	for _, seg := range strings.Split(string(buf), "\x00") {
		if seg == "" {
			continue
		}
		names = append(names, lossy(seg))
	}
	return names
}

func (c *Cluster) observe(op string, start time.Time, size int64, err error, attrs ...any) {
	d := time.Since(start)
	c.metrics.RecordOperation(op, d, size, err)
	if err != nil {
		c.logger.Debug("operation failed", append(attrs, "op", op, "duration", d, "error", err)...)
		return
	}
	c.logger.Debug("operation complete", append(attrs, "op", op, "duration", d, "bytes", size)...)
}

// poolError classifies status for a pool-scoped call, reporting a missing
// pool as ErrCodePoolNotFound.
func poolError(op, pool string, status int) error {
	err := statusError(op, status, "pool", pool)
	if status == -int(unix.ENOENT) {
		if e, ok := err.(*errors.Error); ok {
			e.Code = errors.ErrCodePoolNotFound
			e.Category = errors.GetCategory(e.Code)
		}
	}
	return err
}

// statusError classifies status and attaches the operation and key/value
// context pairs.
func statusError(op string, status int, kv ...string) error {
	err := errors.FromStatus(status)
	e, ok := err.(*errors.Error)
	if !ok {
		return err
	}
	e.WithOperation(op)
	for i := 0; i+1 < len(kv); i += 2 {
		e.WithContext(kv[i], kv[i+1])
	}
	return e
}

// checkName rejects names that cannot cross the native boundary.
func checkName(op, kind, name string) error {
	if strings.IndexByte(name, 0) < 0 {
		return nil
	}
	return errors.Newf(errors.ErrCodeInvalidName, "%s name contains a NUL byte", kind).
		WithComponent(component).
		WithOperation(op).
		WithContext(kind, lossy(strings.ReplaceAll(name, "\x00", `\0`)))
}

func canceled(op string, cause error) error {
	code := errors.ErrCodeOperationCanceled
	if cause == context.DeadlineExceeded {
		code = errors.ErrCodeOperationTimeout
	}
	return errors.NewError(code, "operation abandoned").
		WithComponent(component).
		WithOperation(op).
		WithCause(cause)
}

// lossy replaces invalid UTF-8 in advisory text.
func lossy(s string) string {
	return strings.ToValidUTF8(s, "�")
}
