package rados

import (
	"context"
	"io"

	"github.com/objectfs/rados/pkg/errors"
)

// Reader adapts an object to io.Reader, io.ReaderAt and io.Seeker. Every
// call issues a read against the cluster; wrap it in a bufio.Reader for
// small reads.
type Reader struct {
	ctx context.Context
	obj *Object
	off int64
}

var (
	_ io.Reader   = (*Reader)(nil)
	_ io.ReaderAt = (*Reader)(nil)
	_ io.Seeker   = (*Reader)(nil)
)

// Reader returns a Reader positioned at the start of the object. ctx
// bounds every read made through it.
func (o *Object) Reader(ctx context.Context) *Reader {
	return &Reader{ctx: ctx, obj: o}
}

// ReadAt reads len(p) bytes at off. It returns io.EOF when fewer bytes
// were available.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.NewError(errors.ErrCodeInvalidArgument, "negative read offset").
			WithComponent(component).WithOperation("read")
	}
	total := 0
	for total < len(p) {
		n, err := r.obj.Read(r.ctx, uint64(off)+uint64(total), p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.obj.Read(r.ctx, uint64(r.off), p)
	r.off += int64(n)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek sets the offset for the next Read. Seeking relative to the end
// stats the object.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = r.off
	case io.SeekEnd:
		st, err := r.obj.Stat(r.ctx)
		if err != nil {
			return r.off, err
		}
		base = int64(st.Size)
	default:
		return r.off, errors.Newf(errors.ErrCodeInvalidArgument, "invalid whence %d", whence).
			WithComponent(component).WithOperation("seek")
	}
	if base+offset < 0 {
		return r.off, errors.NewError(errors.ErrCodeInvalidArgument, "seek before start of object").
			WithComponent(component).WithOperation("seek")
	}
	r.off = base + offset
	return r.off, nil
}
