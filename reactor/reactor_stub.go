//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"github.com/momentics/hioload-transport/api"
	"go.uber.org/zap"
)

// SelectLimit is the highest descriptor number select(2) can watch, plus one.
const SelectLimit = 1024

// Callback is invoked by the loop when a watched descriptor becomes ready.
type Callback func(fd int, ev api.Direction)

// Select is unavailable on this platform.
type Select struct{}

func (Select) Backend() api.Backend { return api.BackendSelect }

func (Select) Wait(int, api.Direction, *api.Timeout) error { return api.ErrNotSupported }

// Poll is unavailable on this platform.
type Poll struct{}

func (Poll) Backend() api.Backend { return api.BackendPoll }

func (Poll) Wait(int, api.Direction, *api.Timeout) error { return api.ErrNotSupported }

// Loop is unavailable on this platform.
type Loop struct{ done chan struct{} }

func NewLoop(*zap.Logger) (*Loop, error) { return nil, api.ErrNotSupported }

func (l *Loop) Start() {}

func (l *Loop) PinTo(int) {}

func (l *Loop) SetWorkers(int) {}

func (l *Loop) Stats() map[string]int64 { return nil }

func (l *Loop) Run() error { return api.ErrNotSupported }

func (l *Loop) Running() bool { return false }

func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) Watch(int, api.Direction, Callback) error { return api.ErrNotSupported }

func (l *Loop) Unwatch(int) error { return api.ErrNotSupported }

func (l *Loop) Forget(int) {}

func (l *Loop) Close() error { return nil }

// LoopMultiplexer is unavailable on this platform.
type LoopMultiplexer struct{ loop *Loop }

func NewLoopMultiplexer(loop *Loop) *LoopMultiplexer { return &LoopMultiplexer{loop: loop} }

func (m *LoopMultiplexer) Loop() *Loop { return m.loop }

func (m *LoopMultiplexer) Backend() api.Backend { return api.BackendEventLoop }

func (m *LoopMultiplexer) Wait(int, api.Direction, *api.Timeout) error { return api.ErrNotSupported }
