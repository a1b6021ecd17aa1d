// Package record defines the XDR-encoded records the simulated cluster
// persists for pools, objects and snapshots.
package record

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Version is written into every record.
const Version uint32 = 1

// Xattr is one extended attribute.
type Xattr struct {
	Name  string
	Value []byte
}

// Object is the stored form of an object.
type Object struct {
	Version   uint32
	Data      []byte
	MtimeSec  int64
	MtimeNsec int64
	Xattrs    []Xattr
}

// Pool is the stored form of a pool.
type Pool struct {
	Version  uint32
	ID       int64
	Name     string
	NextSnap uint64
}

// Snapshot is the stored form of a pool snapshot.
type Snapshot struct {
	Version uint32
	ID      uint64
	Name    string
	Created int64
}

// Cluster holds cluster-wide counters.
type Cluster struct {
	Version    uint32
	NextPoolID int64
}

// Mtime returns the object's modification time.
func (o *Object) Mtime() time.Time {
	return time.Unix(o.MtimeSec, o.MtimeNsec)
}

// Touch sets the modification time.
func (o *Object) Touch(t time.Time) {
	o.MtimeSec = t.Unix()
	o.MtimeNsec = int64(t.Nanosecond())
}

// Xattr returns the named attribute value.
func (o *Object) Xattr(name string) ([]byte, bool) {
	for _, x := range o.Xattrs {
		if x.Name == name {
			return x.Value, true
		}
	}
	return nil, false
}

// SetXattr inserts or replaces an attribute, keeping names sorted.
func (o *Object) SetXattr(name string, value []byte) {
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	i := sort.Search(len(o.Xattrs), func(i int) bool { return o.Xattrs[i].Name >= name })
	if i < len(o.Xattrs) && o.Xattrs[i].Name == name {
		o.Xattrs[i].Value = v
		return
	}
	o.Xattrs = append(o.Xattrs, Xattr{})
	copy(o.Xattrs[i+1:], o.Xattrs[i:])
	o.Xattrs[i] = Xattr{Name: name, Value: v}
}

// RemoveXattr deletes an attribute and reports whether it existed.
func (o *Object) RemoveXattr(name string) bool {
	for i, x := range o.Xattrs {
		if x.Name == name {
			o.Xattrs = append(o.Xattrs[:i], o.Xattrs[i+1:]...)
			return true
		}
	}
	return false
}

// Marshal encodes v as XDR.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes XDR data into v and checks the record version.
func Unmarshal(data []byte, v any) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	var version uint32
	switch r := v.(type) {
	case *Object:
		version = r.Version
	case *Pool:
		version = r.Version
	case *Snapshot:
		version = r.Version
	case *Cluster:
		version = r.Version
	default:
		return nil
	}
	if version != Version {
		return fmt.Errorf("decoding %T: unsupported record version %d", v, version)
	}
	return nil
}
