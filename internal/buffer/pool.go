// Package buffer pools the scratch buffers the client hands to the backend.
package buffer

import (
	"sync"
)

// BytePool provides object pooling for byte slices to reduce GC pressure
type BytePool struct {
	pools map[int]*sync.Pool
	sizes []int
}

// DefaultSizes are the bucket capacities of NewBytePool.
var DefaultSizes = []int{
	64,      // attribute values
	256,     // snapshot names
	1024,    // 1KB
	4096,    // 4KB
	16384,   // 16KB
	65536,   // 64KB
	262144,  // 256KB
	1048576, // 1MB
	4194304, // 4MB
}

// NewBytePool creates a byte pool with the given ascending bucket sizes,
// or DefaultSizes when none are given.
func NewBytePool(sizes ...int) *BytePool {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}

	pools := make(map[int]*sync.Pool, len(sizes))
	for _, size := range sizes {
		pools[size] = &sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		}
	}

	return &BytePool{
		pools: pools,
		sizes: append([]int(nil), sizes...),
	}
}

// Get retrieves a byte slice of exactly size bytes. Sizes above the largest
// bucket are allocated directly.
func (p *BytePool) Get(size int) []byte {
	for _, bucketSize := range p.sizes {
		if bucketSize >= size {
			buf := p.pools[bucketSize].Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a byte slice to the pool for reuse. The contents are cleared.
// Slices not obtained from Get are left to the GC.
func (p *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}

	capacity := cap(buf)
	pool, exists := p.pools[capacity]
	if !exists {
		return
	}
	buf = buf[:capacity]
	clear(buf)
	// nolint:staticcheck // SA6002: sync.Pool.Put requires interface{}, slice allocation is expected
	pool.Put(buf)
}

// PoolStats describes the bucket layout.
type PoolStats struct {
	PoolSizes     []int `json:"pool_sizes"`
	TotalPools    int   `json:"total_pools"`
	MaxBufferSize int   `json:"max_buffer_size"`
	MinBufferSize int   `json:"min_buffer_size"`
}

// GetStats returns current pool statistics
func (p *BytePool) GetStats() PoolStats {
	stats := PoolStats{
		PoolSizes:  append([]int(nil), p.sizes...),
		TotalPools: len(p.pools),
	}
	if len(p.sizes) > 0 {
		stats.MinBufferSize = p.sizes[0]
		stats.MaxBufferSize = p.sizes[len(p.sizes)-1]
	}
	return stats
}

var defaultBytePool = NewBytePool()

// Get gets a buffer from the default pool
func Get(size int) []byte {
	return defaultBytePool.Get(size)
}

// Put returns a buffer to the default pool
func Put(buf []byte) {
	defaultBytePool.Put(buf)
}
