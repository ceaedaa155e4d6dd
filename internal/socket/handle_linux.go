//go:build linux
// +build linux

// File: internal/socket/handle_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket primitives over golang.org/x/sys/unix.

package socket

import (
	"net"
	"syscall"

	"github.com/momentics/hioload-transport/api"
	"golang.org/x/sys/unix"
)

// Address families and socket types accepted by Create.
const (
	AFInet      = unix.AF_INET
	AFInet6     = unix.AF_INET6
	SockStream  = unix.SOCK_STREAM
	ProtoTCP    = unix.IPPROTO_TCP
	DefaultBack = unix.SOMAXCONN
)

const invalidFd = -1

var _ api.Socket = (*Handle)(nil)

// noCopy marks Handle as move-only for go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle owns one OS descriptor. It is used through a pointer and handed
// over, never copied; Close is the single release point and leaves the
// descriptor at the invalid sentinel.
type Handle struct {
	_ noCopy

	fd       int
	family   int
	nonblock bool

	// resetSeen records the one tolerated ECONNRESET on receive.
	resetSeen bool
}

// Create opens a new socket in non-blocking mode.
func Create(family, sotype, proto int) (*Handle, error) {
	fd, err := unix.Socket(family, sotype|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return nil, translate("socket", err)
	}
	h := &Handle{fd: fd, family: family}
	if err := h.SetNonblocking(); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if sotype == unix.SOCK_STREAM {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}
	return h, nil
}

// FamilyOf returns the address family for ip.
func FamilyOf(ip net.IP) int {
	if ip == nil || ip.To4() != nil {
		return AFInet
	}
	return AFInet6
}

// Fd returns the descriptor, or -1 once closed.
func (h *Handle) Fd() int { return h.fd }

// Family returns the address family the socket was created with.
func (h *Handle) Family() int { return h.family }

// Valid reports whether the handle still owns a descriptor.
func (h *Handle) Valid() bool { return h.fd != invalidFd }

// Nonblocking reports the current blocking mode flag.
func (h *Handle) Nonblocking() bool { return h.nonblock }

// SetNonblocking switches the descriptor to non-blocking mode. Idempotent.
func (h *Handle) SetNonblocking() error {
	if !h.Valid() {
		return api.ErrClosed
	}
	if h.nonblock {
		return nil
	}
	if err := unix.SetNonblock(h.fd, true); err != nil {
		return translate("set_nonblocking", err)
	}
	h.nonblock = true
	return nil
}

// SetBlocking switches the descriptor back to blocking mode. Idempotent.
func (h *Handle) SetBlocking() error {
	if !h.Valid() {
		return api.ErrClosed
	}
	if !h.nonblock {
		return nil
	}
	if err := unix.SetNonblock(h.fd, false); err != nil {
		return translate("set_blocking", err)
	}
	h.nonblock = false
	return nil
}

// StartConnect issues a connect. nil means connected at once, ErrInProgress
// means completion must be awaited with FinishConnect.
func (h *Handle) StartConnect(addr *net.TCPAddr) error {
	sa, err := sockaddr(addr, h.family)
	if err != nil {
		return err
	}
	for {
		err = unix.Connect(h.fd, sa)
		if !isInterrupt(err) {
			break
		}
	}
	return translate("connect", err)
}

// FinishConnect waits for a pending connect to resolve within t.
func (h *Handle) FinishConnect(t *api.Timeout, mux api.Multiplexer) error {
	for {
		if err := mux.Wait(h.fd, api.ConnectCompletion, t); err != nil {
			return err
		}
		soerr, err := unix.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return translate("getsockopt", err)
		}
		if soerr != 0 {
			return translate("connect", syscall.Errno(soerr))
		}
		// Writable without a pending error; confirm a peer exists.
		if _, err := unix.Getpeername(h.fd); err == nil {
			return nil
		} else if err != unix.ENOTCONN {
			return translate("connect", err)
		}
		if t.IsExpired() {
			return api.ErrTimeout
		}
	}
}

// Connect connects to addr, waiting on the multiplexer for at most t.
func (h *Handle) Connect(addr *net.TCPAddr, t *api.Timeout, mux api.Multiplexer) error {
	err := h.StartConnect(addr)
	if err == api.ErrInProgress {
		return h.FinishConnect(t, mux)
	}
	return err
}

// Bind assigns a local address. SO_REUSEADDR is set first.
func (h *Handle) Bind(addr *net.TCPAddr) error {
	_ = unix.SetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	sa, err := sockaddr(addr, h.family)
	if err != nil {
		return err
	}
	return translate("bind", unix.Bind(h.fd, sa))
}

// Listen marks the socket as passive.
func (h *Handle) Listen(backlog int) error {
	if backlog <= 0 {
		backlog = DefaultBack
	}
	return translate("listen", unix.Listen(h.fd, backlog))
}

// Accept returns the next pending connection as a non-blocking handle,
// waiting for readability while none is queued.
func (h *Handle) Accept(t *api.Timeout, mux api.Multiplexer) (*Handle, error) {
	for {
		nfd, _, err := unix.Accept4(h.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == nil {
			_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			return &Handle{fd: nfd, family: h.family, nonblock: true}, nil
		}
		if isInterrupt(err) || err == unix.ECONNABORTED {
			continue
		}
		if terr := translate("accept", err); terr != api.ErrWouldBlock {
			return nil, terr
		}
		if err := mux.Wait(h.fd, api.Readable, t); err != nil {
			return nil, err
		}
	}
}

// Send performs one send call. Interrupts are retried; would-block is
// reported for the caller to wait on writability.
func (h *Handle) Send(p []byte) (int, error) {
	if !h.Valid() {
		return 0, &api.OSError{Op: "send", Code: int(unix.EBADF), Msg: unix.EBADF.Error()}
	}
	for {
		n, err := unix.SendmsgN(h.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		if isInterrupt(err) {
			continue
		}
		if err != nil {
			return 0, translate("send", err)
		}
		return n, nil
	}
}

// Recv performs one receive call. A zero-length read is ErrClosed. The
// first connection reset is reported as would-block and every later one is
// fatal; this tolerance is a heuristic for resets left over from a failed
// send, not a protocol guarantee.
func (h *Handle) Recv(p []byte) (int, error) {
	if !h.Valid() {
		return 0, &api.OSError{Op: "recv", Code: int(unix.EBADF), Msg: unix.EBADF.Error()}
	}
	for {
		n, err := unix.Read(h.fd, p)
		if isInterrupt(err) {
			continue
		}
		if err != nil {
			if isReset(err) && !h.resetSeen {
				h.resetSeen = true
				return 0, api.ErrWouldBlock
			}
			return 0, translate("recv", err)
		}
		if n == 0 && len(p) > 0 {
			return 0, api.ErrClosed
		}
		return n, nil
	}
}

// Shutdown disables further sends and receives.
func (h *Handle) Shutdown() error {
	if !h.Valid() {
		return nil
	}
	err := unix.Shutdown(h.fd, unix.SHUT_RDWR)
	if err == unix.ENOTCONN {
		return nil
	}
	return translate("shutdown", err)
}

// Close restores blocking mode, closes the descriptor and invalidates the
// handle. Closing twice is a no-op.
func (h *Handle) Close() error {
	if !h.Valid() {
		return nil
	}
	_ = h.SetBlocking()
	fd := h.fd
	h.fd = invalidFd
	return translate("close", unix.Close(fd))
}

// LocalAddr returns the bound address.
func (h *Handle) LocalAddr() net.Addr {
	if !h.Valid() {
		return nil
	}
	sa, err := unix.Getsockname(h.fd)
	if err != nil {
		return nil
	}
	return tcpAddr(sa)
}

// RemoteAddr returns the peer address of a connected socket.
func (h *Handle) RemoteAddr() net.Addr {
	if !h.Valid() {
		return nil
	}
	sa, err := unix.Getpeername(h.fd)
	if err != nil {
		return nil
	}
	return tcpAddr(sa)
}

func sockaddr(addr *net.TCPAddr, family int) (unix.Sockaddr, error) {
	ip := addr.IP
	switch family {
	case AFInet:
		if ip == nil {
			ip = net.IPv4zero
		}
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, api.NewError(api.ErrCodeConfiguration, "address family mismatch").WithContext("addr", addr.String())
		}
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	case AFInet6:
		if ip == nil {
			ip = net.IPv6zero
		}
		ip16 := ip.To16()
		if ip16 == nil {
			return nil, api.NewError(api.ErrCodeConfiguration, "address family mismatch").WithContext("addr", addr.String())
		}
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip16)
		if addr.Zone != "" {
			if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
				sa.ZoneId = uint32(ifi.Index)
			}
		}
		return sa, nil
	}
	return nil, api.NewError(api.ErrCodeConfiguration, "unsupported address family").WithContext("family", family)
}

func tcpAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	}
	return nil
}
