// Package session
// Author: momentics <momentics@gmail.com>
//
// Session registry for server listeners. Each accepted stream is tracked under
// a generated session id until it is closed. The registry is sharded and
// serializes its own mutations, so a listener may be driven from several
// goroutines without external locking.

package session
