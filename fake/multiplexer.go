// Package fake
// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-transport/api"
)

// WaitCall records one Multiplexer.Wait invocation.
type WaitCall struct {
	Fd        int
	Dir       api.Direction
	Remaining time.Duration
}

// Multiplexer is a scripted api.Multiplexer. Each Wait pops the next scripted
// result; an empty script reports ready. OnWait, when set, runs before the
// result is returned and may feed the socket being waited on.
type Multiplexer struct {
	mu     sync.Mutex
	script []error
	calls  []WaitCall
	Kind   api.Backend
	OnWait func(fd int, dir api.Direction)
}

var _ api.Multiplexer = (*Multiplexer)(nil)

// NewMultiplexer returns a multiplexer reporting results in order.
func NewMultiplexer(results ...error) *Multiplexer {
	return &Multiplexer{script: results, Kind: api.BackendPoll}
}

// Script appends results for upcoming waits.
func (m *Multiplexer) Script(results ...error) {
	m.mu.Lock()
	m.script = append(m.script, results...)
	m.mu.Unlock()
}

// Calls returns a copy of the recorded waits.
func (m *Multiplexer) Calls() []WaitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WaitCall(nil), m.calls...)
}

func (m *Multiplexer) Backend() api.Backend { return m.Kind }

func (m *Multiplexer) Wait(fd int, dir api.Direction, t *api.Timeout) error {
	m.mu.Lock()
	m.calls = append(m.calls, WaitCall{Fd: fd, Dir: dir, Remaining: t.Remaining()})
	var res error
	if len(m.script) > 0 {
		res = m.script[0]
		m.script = m.script[1:]
	}
	hook := m.OnWait
	m.mu.Unlock()
	if hook != nil {
		hook(fd, dir)
	}
	return res
}
