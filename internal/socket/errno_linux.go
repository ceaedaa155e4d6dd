//go:build linux
// +build linux

// File: internal/socket/errno_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux errno translation into the api outcome set.

package socket

import (
	"errors"
	"syscall"

	"github.com/momentics/hioload-transport/api"
	"golang.org/x/sys/unix"
)

// translate maps an OS error returned by op into the api outcome set.
// EINTR must already have been retried by the caller.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return &api.OSError{Op: op, Code: -1, Msg: err.Error()}
	}
	// EWOULDBLOCK has the same value as EAGAIN on Linux.
	switch errno {
	case unix.EAGAIN:
		return api.ErrWouldBlock
	case unix.EINPROGRESS, unix.EALREADY:
		return api.ErrInProgress
	}
	return &api.OSError{Op: op, Code: int(errno), Msg: errno.Error()}
}

func isInterrupt(err error) bool {
	return err == unix.EINTR
}

func isReset(err error) bool {
	return err == unix.ECONNRESET
}
