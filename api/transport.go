// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Socket and readiness contracts consumed by the transport core.

package api

// Socket is the primitive operation set bound to one OS handle. Send and Recv
// perform a single underlying call and report only the closed error set:
// nil, ErrWouldBlock, ErrClosed or a fatal *OSError.
type Socket interface {
	// Fd returns the OS descriptor, or -1 once closed.
	Fd() int

	// Send writes from p once; n may be less than len(p).
	Send(p []byte) (n int, err error)

	// Recv reads into p once; ErrClosed signals an orderly peer shutdown.
	Recv(p []byte) (n int, err error)

	// Close releases the handle; calling it twice is a no-op.
	Close() error
}
