package rados

import (
	"bytes"
	"context"
	"iter"
	"maps"
	"slices"

	"github.com/objectfs/rados/internal/buffer"
	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/pkg/errors"
)

const (
	xattrInitialSize = 64
	xattrMaxSize     = 1 << 24
)

// Xattrs is a snapshot of an object's extended attributes.
type Xattrs struct {
	m map[string][]byte
}

// Get returns the value of the named attribute.
func (x Xattrs) Get(name string) ([]byte, bool) {
	v, ok := x.m[name]
	return v, ok
}

// Len returns the number of attributes.
func (x Xattrs) Len() int { return len(x.m) }

// Names returns the attribute names in sorted order.
func (x Xattrs) Names() []string {
	return slices.Sorted(maps.Keys(x.m))
}

// All yields attributes in name order.
func (x Xattrs) All() iter.Seq2[string, []byte] {
	return func(yield func(string, []byte) bool) {
		for _, name := range x.Names() {
			if !yield(name, x.m[name]) {
				return
			}
		}
	}
}

// Map returns a copy of the attributes as a map.
func (x Xattrs) Map() map[string][]byte {
	return maps.Clone(x.m)
}

// GetXattr returns the value of one attribute, growing the receive buffer
// from 64 bytes until the value fits.
func (o *Object) GetXattr(ctx context.Context, name string) ([]byte, error) {
	const op = "getxattr"
	if err := checkXattrName(op, name); err != nil {
		return nil, err
	}
	return grow(ctx, o.p.c, op, xattrInitialSize, xattrMaxSize, func(n int) ([]byte, error) {
		scratch := buffer.Get(n)
		f, err := start(o, aioOp[[]byte]{
			name: op,
			initiate: func(io native.IoCtx, c native.Completion) int {
				return io.AioGetXattr(o.name, c, name, scratch)
			},
			finish: func(n int) ([]byte, error) {
				return bytes.Clone(scratch[:n]), nil
			},
			size:    func(v []byte) int64 { return int64(len(v)) },
			cleanup: func() { buffer.Put(scratch) },
		})
		v, err := wait(ctx, f, err)
		if err != nil {
			if e, ok := err.(*errors.Error); ok && e.Status != 0 {
				e.WithContext("xattr", name)
			}
		}
		return v, err
	})
}

// xattrsHolder owns the iterator the backend stores on completion.
type xattrsHolder struct {
	it native.XattrsIter
}

func (h *xattrsHolder) end() {
	if h.it != nil {
		h.it.End()
		h.it = nil
	}
}

// GetXattrs returns every attribute of the object.
func (o *Object) GetXattrs(ctx context.Context) (Xattrs, error) {
	const op = "getxattrs"
	h := new(xattrsHolder)
	f, err := start(o, aioOp[Xattrs]{
		name: op,
		initiate: func(io native.IoCtx, c native.Completion) int {
			return io.AioGetXattrs(o.name, c, &h.it)
		},
		finish: func(int) (Xattrs, error) {
			defer h.end()
			return o.drainXattrs(op, h.it)
		},
		cleanup: h.end,
	})
	return wait(ctx, f, err)
}

func (o *Object) drainXattrs(op string, it native.XattrsIter) (Xattrs, error) {
	x := Xattrs{m: make(map[string][]byte)}
	if it == nil {
		return x, nil
	}
	for {
		name, value, status := it.Next()
		if status < 0 {
			return Xattrs{}, o.statusError(op, status)
		}
		if name == "" {
			return x, nil
		}
		x.m[lossy(name)] = value
	}
}

// checkXattrName also rejects the empty name, which the attribute
// iterator uses to mark its end.
func checkXattrName(op, name string) error {
	if name == "" {
		return errors.NewError(errors.ErrCodeInvalidName, "xattr name is empty").
			WithComponent(component).
			WithOperation(op)
	}
	return checkName(op, "xattr", name)
}

// SetXattr sets one attribute, creating the object if needed.
func (o *Object) SetXattr(ctx context.Context, name string, value []byte) error {
	const op = "setxattr"
	if err := checkXattrName(op, name); err != nil {
		return err
	}
	f, err := start(o, aioOp[struct{}]{
		name: op,
		initiate: func(io native.IoCtx, c native.Completion) int {
			return io.AioSetXattr(o.name, c, name, value)
		},
		finish: func(int) (struct{}, error) { return struct{}{}, nil },
		size:   func(struct{}) int64 { return int64(len(value)) },
	})
	_, err = wait(ctx, f, err)
	return err
}

// RmXattr removes one attribute.
func (o *Object) RmXattr(ctx context.Context, name string) error {
	const op = "rmxattr"
	if err := checkXattrName(op, name); err != nil {
		return err
	}
	f, err := start(o, aioOp[struct{}]{
		name: op,
		initiate: func(io native.IoCtx, c native.Completion) int {
			return io.AioRmXattr(o.name, c, name)
		},
		finish: func(int) (struct{}, error) { return struct{}{}, nil },
	})
	_, err = wait(ctx, f, err)
	return err
}
