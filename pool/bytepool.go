// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// Size-classed byte slice pool backing connection buffers.

package pool

import (
	"sync"
	"sync/atomic"
)

// BytePool hands out slices of one fixed size class.
type BytePool struct {
	size  int
	slabs sync.Pool
	gets  atomic.Int64
	puts  atomic.Int64
	inUse atomic.Int64
}

// NewBytePool creates a pool of size-byte slices.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &BytePool{size: size}
	p.slabs.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size returns the size class.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer from the pool.
func (b *BytePool) GetBuffer() []byte {
	b.gets.Add(1)
	b.inUse.Add(1)
	return (*b.slabs.Get().(*[]byte))[:b.size]
}

// PutBuffer returns a buffer to the pool. Slices of a foreign size are left
// to the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	b.puts.Add(1)
	b.inUse.Add(-1)
	buf = buf[:b.size]
	b.slabs.Put(&buf)
}

// Stats reports allocation counters.
func (b *BytePool) Stats() Stats {
	return Stats{
		TotalAlloc: b.gets.Load(),
		TotalFree:  b.puts.Load(),
		InUse:      b.inUse.Load(),
	}
}

// Stats aggregates pool accounting.
type Stats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
}
