//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - select(2) backend.

package reactor

import (
	"github.com/momentics/hioload-transport/api"
	"golang.org/x/sys/unix"
)

// SelectLimit is the highest descriptor number select(2) can watch, plus one.
const SelectLimit = 1024

// Select waits with select(2). Descriptor sets are rebuilt on every call.
type Select struct{}

var _ api.Multiplexer = Select{}

// Backend implements api.Multiplexer.
func (Select) Backend() api.Backend { return api.BackendSelect }

// Wait implements api.Multiplexer.
func (Select) Wait(fd int, dir api.Direction, t *api.Timeout) error {
	if fd < 0 {
		return badDescriptor("select")
	}
	if fd >= SelectLimit {
		return api.NewError(api.ErrCodeNotSupported, "descriptor exceeds select limit").
			WithContext("fd", fd).WithContext("limit", SelectLimit)
	}
	for {
		var rset, wset, eset *unix.FdSet
		if dir&api.Readable != 0 {
			rset = &unix.FdSet{}
			rset.Set(fd)
		}
		if dir&api.Writable != 0 {
			wset = &unix.FdSet{}
			wset.Set(fd)
		}
		if dir&api.ErrorCondition != 0 {
			eset = &unix.FdSet{}
			eset.Set(fd)
		}
		var tv *unix.Timeval
		if rem := t.Remaining(); rem >= 0 {
			v := unix.NsecToTimeval(int64(rem))
			tv = &v
		}
		n, err := unix.Select(fd+1, rset, wset, eset, tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return osError("select", err)
		}
		if n == 0 {
			return api.ErrTimeout
		}
		return nil
	}
}
