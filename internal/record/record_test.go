package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectRecord(t *testing.T) {
	o := &Object{Version: Version, Data: []byte("hello")}
	now := time.Unix(1_700_000_000, 123)
	o.Touch(now)
	o.SetXattr("b", []byte("2"))
	o.SetXattr("a", []byte("1"))
	o.SetXattr("b", []byte("3"))

	data, err := Marshal(o)
	require.NoError(t, err)

	var got Object
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, []byte("hello"), got.Data)
	assert.True(t, got.Mtime().Equal(now))
	require.Len(t, got.Xattrs, 2)
	assert.Equal(t, "a", got.Xattrs[0].Name)
	v, ok := got.Xattr("b")
	assert.True(t, ok)
	assert.Equal(t, []byte("3"), v)

	assert.True(t, got.RemoveXattr("a"))
	assert.False(t, got.RemoveXattr("a"))
	_, ok = got.Xattr("a")
	assert.False(t, ok)
}

func TestVersionCheck(t *testing.T) {
	data, err := Marshal(&Pool{Version: 99, ID: 1, Name: "p"})
	require.NoError(t, err)

	var p Pool
	assert.Error(t, Unmarshal(data, &p))
}

func TestTruncatedInput(t *testing.T) {
	data, err := Marshal(&Snapshot{Version: Version, ID: 3, Name: "snap", Created: 42})
	require.NoError(t, err)

	var s Snapshot
	assert.Error(t, Unmarshal(data[:len(data)-4], &s))
}
