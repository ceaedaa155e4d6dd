//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"time"

	"github.com/momentics/hioload-transport/api"
)

// LoopMultiplexer adapts a running Loop to api.Multiplexer. Each Wait
// registers a one-shot waiter and parks until the loop signals it or the
// timeout elapses, in which case the waiter is deregistered.
type LoopMultiplexer struct {
	loop *Loop
}

var _ api.Multiplexer = (*LoopMultiplexer)(nil)

// NewLoopMultiplexer returns a multiplexer backed by loop.
func NewLoopMultiplexer(loop *Loop) *LoopMultiplexer {
	return &LoopMultiplexer{loop: loop}
}

// Loop returns the underlying event loop.
func (m *LoopMultiplexer) Loop() *Loop { return m.loop }

// Backend implements api.Multiplexer.
func (m *LoopMultiplexer) Backend() api.Backend { return api.BackendEventLoop }

// Wait implements api.Multiplexer. A zero remaining budget probes the
// descriptor once without parking.
func (m *LoopMultiplexer) Wait(fd int, dir api.Direction, t *api.Timeout) error {
	if fd < 0 {
		return badDescriptor("epoll")
	}
	rem := t.Remaining()
	if rem == 0 {
		return probe(fd, dir)
	}
	if !m.loop.Running() {
		return ErrLoopClosed
	}
	wt, err := m.loop.await(fd, dir)
	if err != nil {
		return err
	}
	var expire <-chan time.Time
	if rem > 0 {
		timer := time.NewTimer(rem)
		defer timer.Stop()
		expire = timer.C
	}
	select {
	case <-wt.ch:
		return nil
	case <-expire:
		m.loop.cancel(fd, wt)
		select {
		case <-wt.ch:
			return nil
		default:
			return api.ErrTimeout
		}
	case <-m.loop.Done():
		return ErrLoopClosed
	}
}

func probe(fd int, dir api.Direction) error {
	return Poll{}.Wait(fd, dir, api.NewTimeout(0))
}
