// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package transport is the non-blocking transport core: role-tagged
// Connections driven through a Transport Entry (init, uninit, open, close,
// start, stop, send, receive, check, error), partial-I/O orchestration over
// a readiness multiplexer, and the connection lifecycle state machine.
//
// A Context carries configuration, the selected multiplexer backend, hooks,
// metrics and the logger shared by every Connection created from it:
//
//	ctx, _ := transport.NewContext(cfg)
//	c, _ := ctx.Dial()
//	n, err := c.Send(payload)
//
// Errors crossing this package boundary match one of api.ErrTimeout,
// api.ErrDisconnected, api.ErrConfiguration or api.ErrLogic.
package transport
