// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness multiplexers behind api.Multiplexer:
// a select(2) backend that rebuilds its descriptor sets on every call, a
// poll(2) backend over a single descriptor/event pair, and an epoll event
// loop that parks the caller until the loop reports readiness.
package reactor
