// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"errors"

	"github.com/momentics/hioload-transport/api"
)

// ErrLoopClosed is returned by waits on a loop that is closed or not running.
var ErrLoopClosed = errors.New("reactor: event loop closed")

// New returns the multiplexer for backend. The event loop backend needs a
// loop; select and poll ignore it.
func New(backend api.Backend, loop *Loop) (api.Multiplexer, error) {
	switch backend {
	case api.BackendSelect:
		return Select{}, nil
	case api.BackendPoll:
		return Poll{}, nil
	case api.BackendEventLoop:
		if loop == nil {
			return nil, api.NewError(api.ErrCodeConfiguration, "event loop backend needs a loop")
		}
		return NewLoopMultiplexer(loop), nil
	}
	return nil, api.NewError(api.ErrCodeConfiguration, "unknown backend").WithContext("backend", int(backend))
}
