package rados

import (
	"context"
	"time"

	"github.com/objectfs/rados/internal/buffer"
	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/pkg/errors"
	"github.com/objectfs/rados/pkg/rados/aio"
)

// ObjectStat is an object's size and modification time.
type ObjectStat struct {
	Size    uint64    `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// Object names an object in a pool. Like Pool it holds no native
// resources and is safe to share.
//
// The Async methods return a Future that holds a pool context, a
// completion and a reference on the Cluster until Release is called;
// Cluster.Close waits for every one of them.
type Object struct {
	p    *Pool
	name string
}

// Name returns the object name.
func (o *Object) Name() string { return o.name }

// Pool returns the pool the object lives in.
func (o *Object) Pool() *Pool { return o.p }

func (o *Object) statusError(op string, status int, kv ...string) error {
	return statusError(op, status, append([]string{"pool", o.p.name, "object", o.name}, kv...)...)
}

// aioOp describes one asynchronous object operation.
type aioOp[T any] struct {
	name string
	// initiate submits the operation and returns the initiation status.
	initiate func(io native.IoCtx, c native.Completion) int
	// finish converts a non-negative completion status into the result.
	finish func(status int) (T, error)
	// size reports the payload size for metrics. May be nil.
	size func(T) int64
	// cleanup runs once the backend is done with the operation. May be nil.
	cleanup func()
}

// start opens a pool context and completion for one operation and submits
// it. Both are released when the returned future is released, or at once
// if submission fails.
func start[T any](o *Object, op aioOp[T]) (*aio.Future[T], error) {
	cleanup := func() {
		if op.cleanup != nil {
			op.cleanup()
		}
	}
	if err := checkName(op.name, "object", o.name); err != nil {
		cleanup()
		return nil, err
	}
	io, done, err := o.p.ioctx(op.name)
	if err != nil {
		cleanup()
		return nil, err
	}

	c := o.p.c
	comp, err := aio.NewCompletion(c.h)
	if err != nil {
		done()
		cleanup()
		if e, ok := err.(*errors.Error); ok {
			e.WithOperation(op.name).WithContext("pool", o.p.name).WithContext("object", o.name)
		}
		c.metrics.RecordOperation(op.name, 0, 0, err)
		return nil, err
	}

	began := time.Now()
	c.metrics.CompletionStarted()
	if status := op.initiate(io, comp.Native()); status < 0 {
		// The callback never fires for a synchronous failure.
		comp.Release()
		done()
		c.metrics.CompletionFinished()
		cleanup()
		err := o.statusError(op.name, status)
		c.observe(op.name, began, 0, err, "pool", o.p.name, "object", o.name)
		return nil, err
	}

	finish := func(status int) (T, error) {
		var v T
		var err error
		if status < 0 {
			err = o.statusError(op.name, status)
		} else {
			v, err = op.finish(status)
		}
		var size int64
		if err == nil && op.size != nil {
			size = op.size(v)
		}
		c.observe(op.name, began, size, err, "pool", o.p.name, "object", o.name)
		return v, err
	}
	return aio.NewFuture(comp, finish, func() {
		done()
		c.metrics.CompletionFinished()
		cleanup()
	}), nil
}

// wait resolves f and releases it.
func wait[T any](ctx context.Context, f *aio.Future[T], err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Release()
	return f.Wait(ctx)
}

// call runs a synchronous object call on its own pool context.
func (o *Object) call(ctx context.Context, op string, fn func(io native.IoCtx) int) error {
	if err := checkName(op, "object", o.name); err != nil {
		return err
	}
	return o.p.withIoCtx(ctx, op, func(io native.IoCtx) error {
		return o.statusError(op, fn(io))
	})
}

func intSize(n int) int64 { return int64(n) }

// Stat returns the object's size and modification time.
func (o *Object) Stat(ctx context.Context) (ObjectStat, error) {
	f, err := o.StatAsync()
	return wait(ctx, f, err)
}

// StatAsync starts Stat.
func (o *Object) StatAsync() (*aio.Future[ObjectStat], error) {
	out := new(struct {
		size  uint64
		mtime native.Timespec
	})
	return start(o, aioOp[ObjectStat]{
		name: "stat",
		initiate: func(io native.IoCtx, c native.Completion) int {
			return io.AioStat(o.name, c, &out.size, &out.mtime)
		},
		finish: func(int) (ObjectStat, error) {
			return ObjectStat{Size: out.size, ModTime: time.Unix(out.mtime.Sec, out.mtime.Nsec)}, nil
		},
	})
}

// Read reads up to len(buf) bytes at off and returns the count, which is
// short at the end of the object.
func (o *Object) Read(ctx context.Context, off uint64, buf []byte) (int, error) {
	f, err := o.ReadAsync(off, buf)
	return wait(ctx, f, err)
}

// ReadAsync starts Read. buf is written only when the returned future
// resolves successfully, so it may be reused if the future is released
// before that.
func (o *Object) ReadAsync(off uint64, buf []byte) (*aio.Future[int], error) {
	if len(buf) == 0 {
		return aio.Resolved(0, nil), nil
	}
	scratch := buffer.Get(len(buf))
	return start(o, aioOp[int]{
		name: "read",
		initiate: func(io native.IoCtx, c native.Completion) int {
			return io.AioRead(o.name, c, scratch, off)
		},
		finish: func(n int) (int, error) {
			return copy(buf, scratch[:n]), nil
		},
		size:    intSize,
		cleanup: func() { buffer.Put(scratch) },
	})
}

// Write writes data at off and returns len(data).
func (o *Object) Write(ctx context.Context, off uint64, data []byte) (int, error) {
	f, err := o.WriteAsync(off, data)
	return wait(ctx, f, err)
}

// WriteAsync starts Write.
func (o *Object) WriteAsync(off uint64, data []byte) (*aio.Future[int], error) {
	return o.submitWrite("write", data, func(io native.IoCtx, c native.Completion) int {
		return io.AioWrite(o.name, c, data, off)
	})
}

// WriteFull replaces the object's content with data and returns len(data).
func (o *Object) WriteFull(ctx context.Context, data []byte) (int, error) {
	f, err := o.WriteFullAsync(data)
	return wait(ctx, f, err)
}

// WriteFullAsync starts WriteFull.
func (o *Object) WriteFullAsync(data []byte) (*aio.Future[int], error) {
	return o.submitWrite("write_full", data, func(io native.IoCtx, c native.Completion) int {
		return io.AioWriteFull(o.name, c, data)
	})
}

// Append appends data to the object and returns len(data).
func (o *Object) Append(ctx context.Context, data []byte) (int, error) {
	f, err := o.AppendAsync(data)
	return wait(ctx, f, err)
}

// AppendAsync starts Append.
func (o *Object) AppendAsync(data []byte) (*aio.Future[int], error) {
	return o.submitWrite("append", data, func(io native.IoCtx, c native.Completion) int {
		return io.AioAppend(o.name, c, data)
	})
}

// submitWrite starts a write-like operation. The backend reports 0 on
// success, so the result is the number of bytes submitted.
func (o *Object) submitWrite(name string, data []byte, initiate func(native.IoCtx, native.Completion) int) (*aio.Future[int], error) {
	n := len(data)
	return start(o, aioOp[int]{
		name:     name,
		initiate: initiate,
		finish:   func(int) (int, error) { return n, nil },
		size:     intSize,
	})
}

// Truncate resizes the object, zero-filling when it grows.
func (o *Object) Truncate(ctx context.Context, size uint64) error {
	return o.call(ctx, "truncate", func(io native.IoCtx) int {
		return io.Trunc(o.name, size)
	})
}

// Remove deletes the object.
func (o *Object) Remove(ctx context.Context) error {
	f, err := o.RemoveAsync()
	_, err = wait(ctx, f, err)
	return err
}

// RemoveAsync starts Remove.
func (o *Object) RemoveAsync() (*aio.Future[struct{}], error) {
	return start(o, aioOp[struct{}]{
		name: "remove",
		initiate: func(io native.IoCtx, c native.Completion) int {
			return io.AioRemove(o.name, c)
		},
		finish: func(int) (struct{}, error) { return struct{}{}, nil },
	})
}
