//go:build linux
// +build linux

package transport_test

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/control"
	"github.com/momentics/hioload-transport/fake"
	"github.com/momentics/hioload-transport/transport"
	"go.uber.org/zap"
	"golang.org/x/net/nettest"
)

var allBackends = []string{"select", "poll", "eventloop"}

func loopbackConfig(backend string) *control.Config {
	cfg := control.DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	cfg.Backend = backend
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = 5 * time.Second
	cfg.WriteTimeout = 5 * time.Second
	return cfg
}

func startListener(t *testing.T, cfg *control.Config, opts ...transport.Option) (*transport.Context, *transport.Connection) {
	t.Helper()
	opts = append([]transport.Option{transport.WithLogger(zap.NewNop())}, opts...)
	x, err := transport.NewContext(cfg, opts...)
	if err != nil {
		t.Fatalf("server context: %v", err)
	}
	ln, err := x.Listen()
	if err != nil {
		x.Close()
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() {
		ln.Close()
		x.Close()
	})
	return x, ln
}

func listenerPort(t *testing.T, ln *transport.Connection) int {
	t.Helper()
	addr, ok := ln.LocalAddr().(*net.TCPAddr)
	if !ok || addr.Port == 0 {
		t.Fatalf("listener address %v", ln.LocalAddr())
	}
	return addr.Port
}

// Scenario A: 100,000 bytes over a socket that accepts at most 1,500 per call.
func TestLargeSendThroughLimitedSocket(t *testing.T) {
	const size = 100000
	for _, backend := range allBackends {
		t.Run(backend, func(t *testing.T) {
			_, ln := startListener(t, loopbackConfig(backend))

			type result struct {
				data []byte
				err  error
			}
			done := make(chan result, 1)
			go func() {
				s, err := ln.Accept()
				if err != nil {
					done <- result{err: err}
					return
				}
				if err := s.Start(); err != nil {
					done <- result{err: err}
					return
				}
				var got []byte
				for len(got) < size {
					n, err := s.Receive()
					if err != nil {
						done <- result{data: got, err: err}
						return
					}
					rb := s.ReadBuffer()
					span := rb.ReadStartDest()
					if n != len(span) {
						done <- result{err: errors.New("receive count does not match buffered span")}
						return
					}
					got = append(got, span...)
					rb.Skip(len(span))
				}
				done <- result{data: got}
			}()

			ccfg := loopbackConfig(backend)
			ccfg.Port = listenerPort(t, ln)
			var limited *fake.LimitSocket
			cx, err := transport.NewContext(ccfg,
				transport.WithLogger(zap.NewNop()),
				transport.WithSocketWrapper(func(s api.Socket) api.Socket {
					limited = fake.NewLimitSocket(s, 1500, 0)
					return limited
				}))
			if err != nil {
				t.Fatal(err)
			}
			defer cx.Close()
			c, err := cx.Dial()
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer c.Close()

			data := payload(size)
			n, err := c.Send(data)
			if err != nil || n != size {
				t.Fatalf("Send = (%d, %v), want (%d, nil)", n, err, size)
			}
			if limited.Sends() < size/1500 {
				t.Errorf("only %d send calls for %d bytes", limited.Sends(), size)
			}

			select {
			case r := <-done:
				if r.err != nil {
					t.Fatalf("server: %v after %d bytes", r.err, len(r.data))
				}
				if !bytes.Equal(r.data, data) {
					t.Fatalf("server received %d bytes, content mismatch", len(r.data))
				}
			case <-time.After(10 * time.Second):
				t.Fatal("server did not receive payload")
			}
			if got := cx.Metrics().Counter(control.MetricBytesSent); got != size {
				t.Errorf("bytes_sent = %d", got)
			}
		})
	}
}

// Scenario B: nothing listening on the target port.
func TestOpenRefused(t *testing.T) {
	probe, err := nettest.NewLocalListener("tcp4")
	if err != nil {
		t.Skipf("no local listener: %v", err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	for _, backend := range allBackends {
		t.Run(backend, func(t *testing.T) {
			cfg := loopbackConfig(backend)
			cfg.Port = port
			x, err := transport.NewContext(cfg, transport.WithLogger(zap.NewNop()))
			if err != nil {
				t.Fatal(err)
			}
			defer x.Close()
			c, err := x.NewConnection(api.RoleClient)
			if err != nil {
				t.Fatal(err)
			}
			start := time.Now()
			err = c.Open()
			if !errors.Is(err, api.ErrDisconnected) && !errors.Is(err, api.ErrConfiguration) {
				t.Fatalf("Open = %v, want Disconnected or Configuration", err)
			}
			if d := time.Since(start); d > cfg.ConnectTimeout+time.Second {
				t.Errorf("Open took %v, connect timeout %v", d, cfg.ConnectTimeout)
			}
			if c.State() != api.StateUninit {
				t.Errorf("state after failed open = %v", c.State())
			}
		})
	}
}

// An address that never answers runs the connect wait down to its budget.
func TestOpenConnectTimeout(t *testing.T) {
	const budget = 150 * time.Millisecond
	for _, backend := range allBackends {
		t.Run(backend, func(t *testing.T) {
			cfg := loopbackConfig(backend)
			cfg.Address = "10.255.255.1"
			cfg.Port = 9
			cfg.ConnectTimeout = budget
			x, err := transport.NewContext(cfg, transport.WithLogger(zap.NewNop()))
			if err != nil {
				t.Fatal(err)
			}
			defer x.Close()
			c, err := x.NewConnection(api.RoleClient)
			if err != nil {
				t.Fatal(err)
			}
			start := time.Now()
			err = c.Open()
			elapsed := time.Since(start)
			if !errors.Is(err, api.ErrTimeout) {
				t.Skipf("unroutable address answered or network unavailable: %v", err)
			}
			if elapsed < budget-10*time.Millisecond {
				t.Errorf("Open timed out after %v, before its %v budget", elapsed, budget)
			}
			if elapsed > budget+time.Second {
				t.Errorf("Open took %v with a %v budget", elapsed, budget)
			}
			if c.State() != api.StateUninit {
				t.Errorf("state after connect timeout = %v", c.State())
			}
			if got := x.Metrics().Counter(control.MetricConnectionsOpened); got != 0 {
				t.Errorf("connections opened = %d", got)
			}
		})
	}
}

// Scenario C: the peer closes without sending.
func TestPeerCloseDisconnectsSession(t *testing.T) {
	for _, backend := range allBackends {
		t.Run(backend, func(t *testing.T) {
			x, ln := startListener(t, loopbackConfig(backend))
			conn, err := net.Dial("tcp", ln.LocalAddr().String())
			if err != nil {
				t.Fatal(err)
			}
			s, err := ln.Accept()
			if err != nil {
				t.Fatalf("Accept: %v", err)
			}
			if _, ok := ln.Session(s.ID()); !ok || len(ln.Sessions()) != 1 {
				t.Fatal("session not registered")
			}
			if err := s.Start(); err != nil {
				t.Fatal(err)
			}
			conn.Close()

			n, err := s.Receive()
			if n != 0 || !errors.Is(err, api.ErrDisconnected) {
				t.Fatalf("Receive = (%d, %v), want (0, ErrDisconnected)", n, err)
			}
			if s.State() != api.StateClosed {
				t.Errorf("session state = %v", s.State())
			}
			if s.ReadBuffer() != nil || s.WriteBuffer() != nil {
				t.Error("session buffers not released")
			}
			if len(ln.Sessions()) != 0 {
				t.Errorf("registry still holds %d sessions", len(ln.Sessions()))
			}
			if err := s.Close(); err != nil {
				t.Errorf("second close: %v", err)
			}
			if x.Metrics().Counter(control.MetricSessionsAccepted) != 1 {
				t.Error("sessions_accepted not counted")
			}
		})
	}
}

func TestRoundTripAndTimeout(t *testing.T) {
	for _, backend := range allBackends {
		t.Run(backend, func(t *testing.T) {
			_, ln := startListener(t, loopbackConfig(backend))
			ccfg := loopbackConfig(backend)
			ccfg.Port = listenerPort(t, ln)
			ccfg.ReadTimeout = 80 * time.Millisecond
			cx, err := transport.NewContext(ccfg, transport.WithLogger(zap.NewNop()))
			if err != nil {
				t.Fatal(err)
			}
			defer cx.Close()
			c, err := cx.Dial()
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer c.Close()
			s, err := ln.Accept()
			if err != nil {
				t.Fatal(err)
			}
			s.Start()

			start := time.Now()
			if _, err := c.Receive(); !errors.Is(err, api.ErrTimeout) {
				t.Fatalf("idle Receive = %v, want ErrTimeout", err)
			}
			if d := time.Since(start); d < 60*time.Millisecond {
				t.Errorf("timeout after %v", d)
			}
			if c.State() != api.StateStart {
				t.Fatalf("state after timeout = %v", c.State())
			}

			if _, err := s.Send([]byte("pong")); err != nil {
				t.Fatal(err)
			}
			n, err := c.Receive()
			if err != nil || string(c.ReadBuffer().ReadStartDest()) != "pong" {
				t.Fatalf("Receive = (%d, %v) %q", n, err, c.ReadBuffer().ReadStartDest())
			}
			if c.RemoteAddr() == nil || s.RemoteAddr() == nil {
				t.Error("remote addresses unknown")
			}
		})
	}
}

func TestEventLoopServesSessions(t *testing.T) {
	var mu sync.Mutex
	var sessions []*transport.Connection
	hooks := transport.Hooks{
		OnSession: func(s *transport.Connection) {
			s.Start()
			mu.Lock()
			sessions = append(sessions, s)
			mu.Unlock()
		},
		OnReadable: func(s *transport.Connection) {
			if _, err := s.Check(); err != nil {
				return
			}
			rb := s.ReadBuffer()
			if rb == nil || rb.Size() == 0 {
				return
			}
			msg := append([]byte(nil), rb.ReadStartDest()...)
			rb.Skip(len(msg))
			s.Send(msg)
		},
	}
	_, ln := startListener(t, loopbackConfig("eventloop"), transport.WithHooks(hooks))

	conn, err := net.Dial("tcp", ln.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte("echo me")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len("echo me"))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != "echo me" {
		t.Fatalf("echo = %q", buf)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sessions) != 1 {
		t.Errorf("OnSession calls = %d", len(sessions))
	}
}

func TestServeOnceRoundRobin(t *testing.T) {
	for _, backend := range []string{"select", "poll"} {
		t.Run(backend, func(t *testing.T) {
			hooks := transport.Hooks{
				OnSession: func(s *transport.Connection) { s.Start() },
				OnReadable: func(s *transport.Connection) {
					n, err := s.Check()
					if err != nil || n == 0 {
						return
					}
					rb := s.ReadBuffer()
					msg := append([]byte(nil), rb.ReadStartDest()...)
					rb.Skip(len(msg))
					s.Send(msg)
				},
			}
			_, ln := startListener(t, loopbackConfig(backend), transport.WithHooks(hooks))

			stop := make(chan struct{})
			served := make(chan error, 1)
			go func() {
				for {
					select {
					case <-stop:
						served <- nil
						return
					default:
					}
					if _, err := ln.ServeOnce(api.NewTimeout(50 * time.Millisecond)); err != nil && !errors.Is(err, api.ErrTimeout) {
						served <- err
						return
					}
				}
			}()
			defer func() {
				close(stop)
				if err := <-served; err != nil {
					t.Errorf("ServeOnce: %v", err)
				}
			}()

			var conns []net.Conn
			for i := 0; i < 3; i++ {
				conn, err := net.Dial("tcp", ln.LocalAddr().String())
				if err != nil {
					t.Fatal(err)
				}
				defer conn.Close()
				conn.SetDeadline(time.Now().Add(5 * time.Second))
				conns = append(conns, conn)
			}
			for i, conn := range conns {
				msg := []byte{'m', byte('0' + i)}
				if _, err := conn.Write(msg); err != nil {
					t.Fatal(err)
				}
				got := make([]byte, 2)
				if _, err := io.ReadFull(conn, got); err != nil {
					t.Fatalf("conn %d: %v", i, err)
				}
				if !bytes.Equal(got, msg) {
					t.Errorf("conn %d echo = %q", i, got)
				}
			}
		})
	}
}
