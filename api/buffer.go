// Package api
// Author: momentics
//
// Byte staging buffer consumed by the transport core.

package api

// ByteBuffer stages outbound and inbound bytes for one Connection.
// The core never allocates raw memory for I/O; it only calls this interface.
type ByteBuffer interface {
	// WriteStartDest returns the writable tail span.
	WriteStartDest() []byte

	// Left returns the capacity remaining for writes.
	Left() int

	// Commit advances the write cursor by n bytes written into WriteStartDest.
	Commit(n int)

	// ReadStartDest returns the readable span.
	ReadStartDest() []byte

	// Size returns the number of readable bytes.
	Size() int

	// Skip advances the read cursor by n bytes and reclaims space.
	Skip(n int)

	// Write appends p, growing the buffer as needed.
	Write(p []byte) (int, error)

	// Release returns the backing storage to its pool.
	Release()
}
