// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package transport

import (
	"fmt"

	"github.com/momentics/hioload-transport/api"
	"go.uber.org/zap"
)

type transition int

const (
	opOpen transition = iota
	opStart
	opStop
	opIO
	opDisconnect
)

func (t transition) String() string {
	return [...]string{"open", "start", "stop", "io", "disconnect"}[t]
}

// rules lists the states each transition is legal from. close is legal from
// every state and has no entry.
var rules = [...][]api.State{
	opOpen:       {api.StateUninit, api.StateClosed},
	opStart:      {api.StateReady, api.StateStop},
	opStop:       {api.StateStart},
	opIO:         {api.StateStart},
	opDisconnect: {api.StateReady, api.StateStart, api.StateStop},
}

// allowed reports whether t is legal in the current state. I/O outside start
// is api.ErrNotReady, every other violation api.ErrLogic.
func (c *Connection) allowed(t transition) error {
	cur := c.State()
	for _, s := range rules[t] {
		if s == cur {
			return nil
		}
	}
	if t == opIO {
		return fmt.Errorf("%w (state %s)", api.ErrNotReady, cur)
	}
	return fmt.Errorf("%w: %s not allowed in state %s", api.ErrLogic, t, cur)
}

func (c *Connection) setState(s api.State) {
	prev := api.State(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Debug("state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}
