package sim

import (
	"errors"
	"io/fs"
	"slices"
	"sort"
	"sync"

	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/objectfs/rados/internal/kv"
	"github.com/objectfs/rados/internal/native"
	"github.com/objectfs/rados/internal/record"
)

type clusterState int

const (
	stateConfiguring clusterState = iota
	stateConnected
	stateShutdown
)

type cluster struct {
	b    *Backend
	name string
	user string

	mu    sync.Mutex
	state clusterState
	conf  map[string]any
}

var _ native.Cluster = (*cluster)(nil)

// ConfReadFile loads a YAML, TOML or JSON settings file. Keys are kept for
// inspection; the simulated cluster has no tunables that depend on them.
func (c *cluster) ConfReadFile(path string) int {
	if status := c.b.faults.take(OpConfRead, PhaseInitiate); status < 0 {
		return status
	}
	if path == "" {
		return 0
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errno(unix.ENOENT)
		}
		c.b.logger.Warn("failed to parse cluster config", "path", path, "error", err)
		return errno(unix.EINVAL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conf = v.AllSettings()
	return 0
}

func (c *cluster) Connect() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateConnected:
		return errno(unix.EISCONN)
	case stateShutdown:
		return errno(unix.ESHUTDOWN)
	}
	if status := c.b.faults.take(OpConnect, PhaseInitiate); status < 0 {
		return status
	}
	if len(c.b.cfg.AllowedUsers) > 0 && !slices.Contains(c.b.cfg.AllowedUsers, c.user) {
		return errno(unix.EACCES)
	}

	c.state = stateConnected
	c.b.clusters.Add(1)
	c.b.logger.Debug("client connected", "cluster", c.name, "user", c.user)
	return 0
}

func (c *cluster) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateConnected {
		c.b.clusters.Add(-1)
	}
	c.state = stateShutdown
}

func (c *cluster) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

func (c *cluster) PoolList(buf []byte) int {
	if !c.connected() {
		return errno(unix.ENOTCONN)
	}
	if status := c.b.faults.take(OpPoolList, PhaseInitiate); status < 0 {
		return status
	}

	c.b.mu.Lock()
	var names []string
	status := c.b.scanAll(poolPrefix(), func(e kv.Entry) int {
		names = append(names, e.Key.Last())
		return 0
	})
	c.b.mu.Unlock()
	if status < 0 {
		return status
	}
	sort.Strings(names)

	var out []byte
	for _, n := range names {
		out = append(out, n...)
		out = append(out, 0)
	}
	out = append(out, 0)
	copy(buf, out)
	return len(out)
}

func (c *cluster) PoolCreate(name string) int {
	if !c.connected() {
		return errno(unix.ENOTCONN)
	}
	if name == "" {
		return errno(unix.EINVAL)
	}

	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, status := b.loadPool(name); status == 0 {
		return errno(unix.EEXIST)
	} else if status != errno(unix.ENOENT) {
		return status
	}

	var cl record.Cluster
	if status := b.loadRecord(clusterKey, &cl); status < 0 && status != errno(unix.ENOENT) {
		return status
	}
	cl.Version = record.Version
	cl.NextPoolID++
	if status := b.saveRecord(clusterKey, &cl); status < 0 {
		return status
	}

	p := &record.Pool{Version: record.Version, ID: cl.NextPoolID, Name: name}
	if status := b.saveRecord(poolKey(name), p); status < 0 {
		return status
	}
	b.logger.Debug("pool created", "pool", name, "id", p.ID)
	return 0
}

func (c *cluster) PoolDelete(name string) int {
	if !c.connected() {
		return errno(unix.ENOTCONN)
	}

	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()

	p, status := b.loadPool(name)
	if status < 0 {
		return status
	}

	var snaps []uint64
	if status := b.scanAll(snapPrefix(p.ID), func(e kv.Entry) int {
		var s record.Snapshot
		if err := record.Unmarshal(e.Value, &s); err == nil {
			snaps = append(snaps, s.ID)
		}
		return 0
	}); status < 0 {
		return status
	}
	for _, id := range snaps {
		if status := b.deletePrefix(snapObjPrefix(p.ID, id)); status < 0 {
			return status
		}
	}
	for _, prefix := range []kv.Key{snapPrefix(p.ID), objPrefix(p.ID)} {
		if status := b.deletePrefix(prefix); status < 0 {
			return status
		}
	}
	if err := b.store.Delete(b.ctx(), poolKey(name)); err != nil {
		return storeStatus(err)
	}
	delete(b.counters, p.ID)
	b.logger.Debug("pool deleted", "pool", name, "id", p.ID)
	return 0
}

func (c *cluster) PoolLookup(name string) int64 {
	if !c.connected() {
		return int64(errno(unix.ENOTCONN))
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	p, status := c.b.loadPool(name)
	if status < 0 {
		return int64(status)
	}
	return p.ID
}

func (c *cluster) IoCtxCreate(pool string) (native.IoCtx, int) {
	if !c.connected() {
		return nil, errno(unix.ENOTCONN)
	}
	if status := c.b.faults.take(OpIoCtxCreate, PhaseInitiate); status < 0 {
		return nil, status
	}

	c.b.mu.Lock()
	p, status := c.b.loadPool(pool)
	c.b.mu.Unlock()
	if status < 0 {
		return nil, status
	}

	c.b.ioctxs.Add(1)
	return &ioctx{b: c.b, c: c, pool: p.Name, poolID: p.ID}, 0
}

func (c *cluster) CreateCompletion(arg any, cb native.Callback) (native.Completion, int) {
	return c.b.newCompletion(arg, cb)
}

// Conf returns a setting loaded by ConfReadFile.
func (c *cluster) Conf(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.conf[key]
	return v, ok
}
