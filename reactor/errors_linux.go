//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"errors"
	"syscall"

	"github.com/momentics/hioload-transport/api"
)

func osError(op string, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &api.OSError{Op: op, Code: int(errno), Msg: errno.Error()}
	}
	return &api.OSError{Op: op, Code: -1, Msg: err.Error()}
}

func badDescriptor(op string) error {
	return &api.OSError{Op: op, Code: int(syscall.EBADF), Msg: syscall.EBADF.Error()}
}
