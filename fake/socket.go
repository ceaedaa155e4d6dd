// Package fake
// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"
	"syscall"
	"time"

	"github.com/momentics/hioload-transport/api"
)

// Step scripts the outcome of one Send or Recv call. A nil Err moves at most
// Limit bytes; Limit 0 with a nil Err is a zero-length transfer.
type Step struct {
	Limit int
	Err   error
}

// Accept moves at most n bytes.
func Accept(n int) Step { return Step{Limit: n} }

// Block reports would-block.
func Block() Step { return Step{Err: api.ErrWouldBlock} }

// Repeat returns n copies of s.
func Repeat(n int, s Step) []Step {
	out := make([]Step, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// Reset reports a connection reset as a fatal OS error.
func Reset() Step {
	return Step{Err: &api.OSError{Op: "recv", Code: int(syscall.ECONNRESET), Msg: syscall.ECONNRESET.Error()}}
}

// Socket is a scripted api.Socket. Scripted steps are consumed first; once a
// script runs out Send accepts up to SendLimit bytes (0 is unlimited) and
// Recv drains fed data, reporting ErrClosed after ClosePeer.
type Socket struct {
	mu         sync.Mutex
	fd         int
	sendScript []Step
	recvScript []Step
	SendLimit  int
	// SendDelay is slept on every Send that accepts bytes.
	SendDelay  time.Duration
	sent       []byte
	inbound    []byte
	peerClosed bool
	closed     bool
	sendCalls  int
	recvCalls  int
}

var _ api.Socket = (*Socket)(nil)

// NewSocket returns an open fake socket reporting fd.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// ScriptSend appends steps for upcoming Send calls.
func (s *Socket) ScriptSend(steps ...Step) *Socket {
	s.mu.Lock()
	s.sendScript = append(s.sendScript, steps...)
	s.mu.Unlock()
	return s
}

// ScriptRecv appends steps for upcoming Recv calls.
func (s *Socket) ScriptRecv(steps ...Step) *Socket {
	s.mu.Lock()
	s.recvScript = append(s.recvScript, steps...)
	s.mu.Unlock()
	return s
}

// Feed makes p available to Recv.
func (s *Socket) Feed(p []byte) {
	s.mu.Lock()
	s.inbound = append(s.inbound, p...)
	s.mu.Unlock()
}

// ClosePeer simulates an orderly shutdown by the remote side.
func (s *Socket) ClosePeer() {
	s.mu.Lock()
	s.peerClosed = true
	s.mu.Unlock()
}

// Sent returns a copy of every byte accepted by Send.
func (s *Socket) Sent() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.sent...)
}

// Calls returns the number of Send and Recv calls made.
func (s *Socket) Calls() (send, recv int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCalls, s.recvCalls
}

// Closed reports whether Close was called.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) Fd() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return -1
	}
	return s.fd
}

func (s *Socket) Send(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCalls++
	if s.closed {
		return 0, badFd("send")
	}
	limit := s.SendLimit
	if len(s.sendScript) > 0 {
		step := s.sendScript[0]
		s.sendScript = s.sendScript[1:]
		if step.Err != nil {
			return 0, step.Err
		}
		limit = step.Limit
		if limit == 0 {
			return 0, nil
		}
	}
	n := len(p)
	if limit > 0 && n > limit {
		n = limit
	}
	if s.SendDelay > 0 {
		time.Sleep(s.SendDelay)
	}
	s.sent = append(s.sent, p[:n]...)
	return n, nil
}

func (s *Socket) Recv(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvCalls++
	if s.closed {
		return 0, badFd("recv")
	}
	limit := 0
	if len(s.recvScript) > 0 {
		step := s.recvScript[0]
		s.recvScript = s.recvScript[1:]
		if step.Err != nil {
			return 0, step.Err
		}
		limit = step.Limit
		if limit == 0 {
			return 0, nil
		}
	}
	if len(s.inbound) == 0 {
		if s.peerClosed {
			return 0, api.ErrClosed
		}
		return 0, api.ErrWouldBlock
	}
	n := copy(p, s.inbound)
	if limit > 0 && n > limit {
		n = limit
	}
	s.inbound = s.inbound[n:]
	return n, nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func badFd(op string) error {
	return &api.OSError{Op: op, Code: int(syscall.EBADF), Msg: syscall.EBADF.Error()}
}

// LimitSocket caps every Send (and optionally Recv) of the wrapped socket,
// forcing partial transfers on a real connection.
type LimitSocket struct {
	api.Socket
	SendLimit int
	RecvLimit int

	mu    sync.Mutex
	sends int
}

// NewLimitSocket wraps s with per-call limits; 0 leaves a direction uncapped.
func NewLimitSocket(s api.Socket, sendLimit, recvLimit int) *LimitSocket {
	return &LimitSocket{Socket: s, SendLimit: sendLimit, RecvLimit: recvLimit}
}

func (l *LimitSocket) Send(p []byte) (int, error) {
	if l.SendLimit > 0 && len(p) > l.SendLimit {
		p = p[:l.SendLimit]
	}
	l.mu.Lock()
	l.sends++
	l.mu.Unlock()
	return l.Socket.Send(p)
}

func (l *LimitSocket) Recv(p []byte) (int, error) {
	if l.RecvLimit > 0 && len(p) > l.RecvLimit {
		p = p[:l.RecvLimit]
	}
	return l.Socket.Recv(p)
}

// Sends returns the number of Send calls forwarded.
func (l *LimitSocket) Sends() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sends
}
