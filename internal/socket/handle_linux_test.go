//go:build linux
// +build linux

package socket_test

import (
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/internal/socket"
	"github.com/momentics/hioload-transport/reactor"
	"golang.org/x/net/nettest"
)

func listen(t *testing.T) (*socket.Handle, *net.TCPAddr) {
	t.Helper()
	h, err := socket.Create(socket.AFInet, socket.SockStream, socket.ProtoTCP)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	if err := h.Bind(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := h.Listen(0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr, ok := h.LocalAddr().(*net.TCPAddr)
	if !ok || addr.Port == 0 {
		t.Fatalf("LocalAddr = %v", h.LocalAddr())
	}
	return h, addr
}

func TestCreateIsNonBlocking(t *testing.T) {
	h, err := socket.Create(socket.AFInet, socket.SockStream, socket.ProtoTCP)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Valid() || !h.Nonblocking() {
		t.Fatal("new handle must be valid and non-blocking")
	}
	if err := h.SetNonblocking(); err != nil {
		t.Errorf("repeated SetNonblocking: %v", err)
	}
	if err := h.SetBlocking(); err != nil || h.Nonblocking() {
		t.Errorf("SetBlocking: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if h.Valid() || h.Fd() != -1 {
		t.Error("closed handle still valid")
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestConnectAcceptSendRecv(t *testing.T) {
	ln, addr := listen(t)
	mux := reactor.Poll{}

	c, err := socket.Create(socket.FamilyOf(addr.IP), socket.SockStream, socket.ProtoTCP)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Connect(addr, api.NewTimeout(time.Second), mux); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s, err := ln.Accept(api.NewTimeout(time.Second), mux)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer s.Close()

	buf := make([]byte, 16)
	if _, err := s.Recv(buf); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("Recv on idle socket = %v, want ErrWouldBlock", err)
	}
	if n, err := c.Send([]byte("hello")); err != nil || n != 5 {
		t.Fatalf("Send = (%d, %v)", n, err)
	}
	if err := mux.Wait(s.Fd(), api.Readable, api.NewTimeout(time.Second)); err != nil {
		t.Fatal(err)
	}
	n, err := s.Recv(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("Recv = %q, %v", buf[:n], err)
	}

	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := mux.Wait(s.Fd(), api.Readable, api.NewTimeout(time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Recv(buf); !errors.Is(err, api.ErrClosed) {
		t.Fatalf("Recv after peer shutdown = %v, want ErrClosed", err)
	}
}

func TestConnectRefused(t *testing.T) {
	probe, err := nettest.NewLocalListener("tcp4")
	if err != nil {
		t.Skip(err)
	}
	addr := probe.Addr().(*net.TCPAddr)
	probe.Close()

	h, err := socket.Create(socket.AFInet, socket.SockStream, socket.ProtoTCP)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	err = h.Connect(addr, api.NewTimeout(2*time.Second), reactor.Select{})
	var osErr *api.OSError
	if !errors.As(err, &osErr) || osErr.Code != int(syscall.ECONNREFUSED) {
		t.Fatalf("Connect = %v, want ECONNREFUSED", err)
	}
}

func TestFamilyMismatchIsConfiguration(t *testing.T) {
	h, err := socket.Create(socket.AFInet, socket.SockStream, socket.ProtoTCP)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	err = h.StartConnect(&net.TCPAddr{IP: net.IPv6loopback, Port: 1})
	if !errors.Is(err, api.ErrConfiguration) {
		t.Fatalf("StartConnect = %v, want ErrConfiguration", err)
	}
}

func TestFirstResetToleratedOnce(t *testing.T) {
	ln, addr := listen(t)
	mux := reactor.Poll{}

	peer, err := net.DialTCP("tcp4", nil, addr)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ln.Accept(api.NewTimeout(time.Second), mux)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	peer.SetLinger(0)
	peer.Close()
	if err := mux.Wait(s.Fd(), api.Readable, api.NewTimeout(time.Second)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8)
	if _, err := s.Recv(buf); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("first reset = %v, want ErrWouldBlock", err)
	}
	if _, err := s.Recv(buf); err == nil || errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("second Recv after reset = %v, want a terminal outcome", err)
	}
}

func TestAcceptTimeout(t *testing.T) {
	ln, _ := listen(t)
	start := time.Now()
	_, err := ln.Accept(api.NewTimeout(30*time.Millisecond), reactor.Poll{})
	if !errors.Is(err, api.ErrTimeout) {
		t.Fatalf("Accept = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Accept returned before its budget")
	}
}
