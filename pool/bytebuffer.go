// File: pool/bytebuffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Growable staging buffer with separate read and write cursors.

package pool

import (
	"fmt"

	"github.com/momentics/hioload-transport/api"
)

// DefaultBufferSize is the initial capacity of a connection buffer.
const DefaultBufferSize = 16 * 1024

var _ api.ByteBuffer = (*ByteBuffer)(nil)

// ByteBuffer holds bytes in data[r:w]. The initial storage comes from a
// BytePool; growth past it allocates and never exceeds max (0 = unbounded).
type ByteBuffer struct {
	data []byte
	r, w int
	max  int
	pool *BytePool
}

// NewByteBuffer takes its initial storage from p.
func NewByteBuffer(p *BytePool, max int) *ByteBuffer {
	return &ByteBuffer{data: p.GetBuffer(), pool: p, max: max}
}

// WriteStartDest returns the writable tail.
func (b *ByteBuffer) WriteStartDest() []byte { return b.data[b.w:] }

// Left returns the capacity remaining for writes.
func (b *ByteBuffer) Left() int { return len(b.data) - b.w }

// Commit advances the write cursor after n bytes were written into WriteStartDest.
func (b *ByteBuffer) Commit(n int) {
	if n < 0 || b.w+n > len(b.data) {
		panic(fmt.Sprintf("pool: commit %d exceeds free space %d", n, b.Left()))
	}
	b.w += n
}

// ReadStartDest returns the readable span.
func (b *ByteBuffer) ReadStartDest() []byte { return b.data[b.r:b.w] }

// Size returns the number of readable bytes.
func (b *ByteBuffer) Size() int { return b.w - b.r }

// Cap returns the current storage size.
func (b *ByteBuffer) Cap() int { return len(b.data) }

// Skip consumes n readable bytes. Space is reclaimed once the buffer drains
// or the consumed prefix outgrows the live data.
func (b *ByteBuffer) Skip(n int) {
	if n < 0 || n > b.Size() {
		panic(fmt.Sprintf("pool: skip %d exceeds size %d", n, b.Size()))
	}
	b.r += n
	switch {
	case b.r == b.w:
		b.r, b.w = 0, 0
	case b.r > len(b.data)/2:
		b.compact()
	}
}

// Write appends p, compacting and then growing as needed. When max would be
// exceeded, the bytes that fit are written and api.ErrResourceExhausted is returned.
func (b *ByteBuffer) Write(p []byte) (int, error) {
	if len(p) > b.Left() {
		b.compact()
	}
	if len(p) > b.Left() {
		b.grow(b.w + len(p))
	}
	n := copy(b.data[b.w:], p)
	b.w += n
	if n < len(p) {
		return n, fmt.Errorf("buffer limit %d: %w", b.max, api.ErrResourceExhausted)
	}
	return n, nil
}

// Reserve makes room for at least n more bytes at the tail.
func (b *ByteBuffer) Reserve(n int) {
	if n <= b.Left() {
		return
	}
	b.compact()
	if n > b.Left() {
		b.grow(b.w + n)
	}
}

// Reset drops all content but keeps the storage.
func (b *ByteBuffer) Reset() { b.r, b.w = 0, 0 }

// Release returns pooled storage; the buffer is empty and unusable afterwards.
func (b *ByteBuffer) Release() {
	if b.data != nil && b.pool != nil {
		b.pool.PutBuffer(b.data)
	}
	b.data = nil
	b.r, b.w = 0, 0
}

func (b *ByteBuffer) compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.data, b.data[b.r:b.w])
	b.r, b.w = 0, n
}

func (b *ByteBuffer) grow(need int) {
	size := 2 * len(b.data)
	if size < need {
		size = need
	}
	if b.max > 0 && size > b.max {
		size = b.max
	}
	if size <= len(b.data) {
		return
	}
	next := make([]byte, size)
	copy(next, b.data[:b.w])
	if b.pool != nil {
		b.pool.PutBuffer(b.data)
	}
	b.data = next
}
