// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted sockets and multiplexers for fault injection in tests.
// Provides predictable, controllable partial sends, would-blocks, zero reads
// and resets without touching the network.
package fake
