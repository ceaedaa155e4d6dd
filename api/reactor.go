// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Readiness wait contract shared by the select, poll and event-loop backends.

package api

// Multiplexer blocks until fd is ready for dir or the timeout elapses.
//
// Wait returns nil when ready, ErrTimeout when the budget ran out, or a fatal
// *OSError. A zero remaining budget polls once without blocking; an infinite
// budget blocks until ready. Signal interruptions are retried internally.
type Multiplexer interface {
	Wait(fd int, dir Direction, t *Timeout) error

	// Backend names the implementation.
	Backend() Backend
}
