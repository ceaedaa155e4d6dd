//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - poll(2) backend.

package reactor

import (
	"github.com/momentics/hioload-transport/api"
	"golang.org/x/sys/unix"
)

// Poll waits with poll(2) on a single descriptor/event pair.
type Poll struct{}

var _ api.Multiplexer = Poll{}

// Backend implements api.Multiplexer.
func (Poll) Backend() api.Backend { return api.BackendPoll }

// Wait implements api.Multiplexer. Error and hang-up conditions count as
// ready so the following call surfaces them.
func (Poll) Wait(fd int, dir api.Direction, t *api.Timeout) error {
	if fd < 0 {
		return badDescriptor("poll")
	}
	var events int16
	if dir&api.Readable != 0 {
		events |= unix.POLLIN
	}
	if dir&api.Writable != 0 {
		events |= unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		fds[0].Revents = 0
		n, err := unix.Poll(fds, t.WaitMillis())
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return osError("poll", err)
		}
		if n == 0 {
			return api.ErrTimeout
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return badDescriptor("poll")
		}
		return nil
	}
}
