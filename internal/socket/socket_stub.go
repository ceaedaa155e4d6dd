//go:build !linux
// +build !linux

// File: internal/socket/socket_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package socket

import (
	"net"

	"github.com/momentics/hioload-transport/api"
)

// Address families and socket types accepted by Create.
const (
	AFInet      = 2
	AFInet6     = 10
	SockStream  = 1
	ProtoTCP    = 6
	DefaultBack = 128
)

// Handle is unavailable on this platform.
type Handle struct{}

// Create returns api.ErrNotSupported on unsupported platforms.
func Create(family, sotype, proto int) (*Handle, error) {
	return nil, api.ErrNotSupported
}

// FamilyOf returns the address family for ip.
func FamilyOf(ip net.IP) int {
	if ip == nil || ip.To4() != nil {
		return AFInet
	}
	return AFInet6
}

func (h *Handle) Fd() int                                           { return -1 }
func (h *Handle) Family() int                                       { return 0 }
func (h *Handle) Valid() bool                                       { return false }
func (h *Handle) Nonblocking() bool                                 { return false }
func (h *Handle) SetNonblocking() error                             { return api.ErrNotSupported }
func (h *Handle) SetBlocking() error                                { return api.ErrNotSupported }
func (h *Handle) StartConnect(*net.TCPAddr) error                   { return api.ErrNotSupported }
func (h *Handle) FinishConnect(*api.Timeout, api.Multiplexer) error { return api.ErrNotSupported }
func (h *Handle) Connect(*net.TCPAddr, *api.Timeout, api.Multiplexer) error {
	return api.ErrNotSupported
}
func (h *Handle) Bind(*net.TCPAddr) error { return api.ErrNotSupported }
func (h *Handle) Listen(int) error        { return api.ErrNotSupported }
func (h *Handle) Accept(*api.Timeout, api.Multiplexer) (*Handle, error) {
	return nil, api.ErrNotSupported
}
func (h *Handle) Send([]byte) (int, error) { return 0, api.ErrNotSupported }
func (h *Handle) Recv([]byte) (int, error) { return 0, api.ErrNotSupported }
func (h *Handle) Shutdown() error          { return nil }
func (h *Handle) Close() error             { return nil }
func (h *Handle) LocalAddr() net.Addr      { return nil }
func (h *Handle) RemoteAddr() net.Addr     { return nil }
