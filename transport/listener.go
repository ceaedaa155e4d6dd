// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/control"
	"github.com/momentics/hioload-transport/internal/session"
	"github.com/momentics/hioload-transport/internal/socket"
	"go.uber.org/zap"
)

// serveSlice bounds a single idle wait inside ServeOnce.
const serveSlice = 10 * time.Millisecond

type listenerEntry struct{ base }

// Init allocates the session registry.
func (e *listenerEntry) Init(c *Connection) error {
	if err := e.base.Init(c); err != nil {
		return err
	}
	c.sessions = session.NewRegistry[*Connection](c.ctx.cfg.SessionShards)
	c.ctx.debug.RegisterProbe("transport.sessions."+c.id, func() any { return c.sessions.Len() })
	return nil
}

func (e *listenerEntry) Uninit(c *Connection) error {
	if err := e.base.Uninit(c); err != nil {
		return err
	}
	c.ctx.debug.UnregisterProbe("transport.sessions." + c.id)
	c.sessions = nil
	return nil
}

// Open binds and listens. An empty address binds every interface; port 0
// picks an ephemeral port, see LocalAddr.
func (e *listenerEntry) Open(c *Connection) error {
	if err := openable(c); err != nil {
		return err
	}
	cfg := c.ctx.cfg
	var ip net.IP
	if cfg.Address != "" {
		ips, err := resolve(cfg.Address, api.NewTimeout(cfg.ConnectTimeout))
		if err != nil {
			return err
		}
		ip = ips[0]
	}
	h, err := socket.Create(socket.FamilyOf(ip), socket.SockStream, socket.ProtoTCP)
	if err != nil {
		return api.Wrap(api.ErrCodeConfiguration, "listen "+hostPort(cfg), err)
	}
	if err := h.Bind(&net.TCPAddr{IP: ip, Port: cfg.Port}); err != nil {
		h.Close()
		return api.Wrap(api.ErrCodeConfiguration, "bind "+hostPort(cfg), err)
	}
	if err := h.Listen(cfg.Backlog); err != nil {
		h.Close()
		return api.Wrap(api.ErrCodeConfiguration, "listen "+hostPort(cfg), err)
	}
	c.handle = h
	c.setState(api.StateReady)
	c.ctx.debug.RegisterProbe(c.probeName(), func() any { return c.State().String() })

	if e.backend == api.BackendEventLoop && c.ctx.hooks.OnSession != nil {
		if err := c.ctx.loop.Watch(h.Fd(), api.Readable, func(int, api.Direction) {
			c.acceptReady()
		}); err != nil {
			c.closeLocked()
			return api.Wrap(api.ErrCodeConfiguration, "watch listener", err)
		}
		c.watched = true
	}
	c.log.Info("listening", zap.Stringer("local", h.LocalAddr()), zap.Stringer("backend", e.backend))
	return nil
}

// Send and receive are not defined on a listener.
func (e *listenerEntry) Send(c *Connection, _ []byte) (int, error) {
	return 0, fmt.Errorf("%w: send on listener", api.ErrLogic)
}

func (e *listenerEntry) Receive(c *Connection) (int, error) {
	return 0, fmt.Errorf("%w: receive on listener", api.ErrLogic)
}

func (e *listenerEntry) Check(c *Connection) (int, error) {
	return 0, fmt.Errorf("%w: check on listener", api.ErrLogic)
}

type sessionEntry struct{ base }

// Open is not defined on an accepted session; it arrives ready.
func (e *sessionEntry) Open(c *Connection) error {
	return fmt.Errorf("%w: sessions are opened by their listener", api.ErrLogic)
}

// acceptReady drains the accept queue from the event loop.
func (c *Connection) acceptReady() {
	for {
		if _, err := c.OnConnectionReady(); err != nil {
			if !errors.Is(err, api.ErrTimeout) {
				c.log.Warn("accept", zap.Error(err))
			}
			return
		}
	}
}

// OnConnectionReady accepts one pending connection without blocking, wraps
// it into a ready session, registers it under a generated id and starts
// read-readiness watching on it. With nothing pending it returns api.ErrTimeout.
func (c *Connection) OnConnectionReady() (*Connection, error) {
	return c.accept(api.NewTimeout(0))
}

// Accept waits up to the read timeout for the next session.
func (c *Connection) Accept() (*Connection, error) {
	return c.accept(api.NewTimeout(c.ctx.cfg.ReadTimeout))
}

// AcceptTimeout waits up to t for the next session.
func (c *Connection) AcceptTimeout(t *api.Timeout) (*Connection, error) {
	return c.accept(t)
}

func (c *Connection) accept(t *api.Timeout) (*Connection, error) {
	if c.role != api.RoleListener {
		return nil, fmt.Errorf("%w: accept on %s", api.ErrLogic, c.role)
	}
	if !c.mu.TryLock() {
		return nil, fmt.Errorf("%w: operation already in flight on %s", api.ErrLogic, c.id)
	}
	defer c.mu.Unlock()
	if st := c.State(); st != api.StateReady && st != api.StateStart {
		return nil, fmt.Errorf("%w: accept in state %s", api.ErrLogic, st)
	}

	h, err := c.handle.Accept(t, c.ctx.mux)
	if err != nil {
		if errors.Is(err, api.ErrTimeout) {
			return nil, api.ErrTimeout
		}
		return nil, disconnected("accept", err)
	}

	entry, err := Lookup(api.RoleSession, c.ctx.backend)
	if err != nil {
		h.Close()
		return nil, err
	}
	s := newConnection(c.ctx, api.RoleSession, entry)
	s.inited = true
	s.parent = c
	s.bind(c.ctx.wrapSocket(h), h)
	if err := c.sessions.Add(s.id, s); err != nil {
		s.release()
		return nil, err
	}
	c.ctx.metrics.Add(control.MetricSessionsAccepted, 1)
	s.log.Info("session accepted", zap.Stringer("remote", h.RemoteAddr()))

	if c.ctx.backend == api.BackendEventLoop && c.ctx.hooks.OnReadable != nil {
		onReadable := c.ctx.hooks.OnReadable
		if err := c.ctx.loop.Watch(s.Fd(), api.Readable, func(int, api.Direction) {
			onReadable(s)
		}); err != nil {
			s.log.Warn("watch session", zap.Error(err))
		} else {
			s.watched = true
		}
	}
	if c.ctx.hooks.OnSession != nil {
		c.ctx.hooks.OnSession(s)
	}
	return s, nil
}

// ServeOnce drives a listener and its sessions round-robin on the select
// and poll backends: pending connections are accepted and OnReadable runs
// for every session with data. When nothing is ready it waits on the
// listener in short slices until t runs out. It returns the number of
// events handled, or api.ErrTimeout when there were none.
func (c *Connection) ServeOnce(t *api.Timeout) (int, error) {
	if c.role != api.RoleListener {
		return 0, fmt.Errorf("%w: serve on %s", api.ErrLogic, c.role)
	}
	for {
		handled := 0
		for {
			if _, err := c.OnConnectionReady(); err != nil {
				if !errors.Is(err, api.ErrTimeout) {
					return handled, err
				}
				break
			}
			handled++
		}
		if onReadable := c.ctx.hooks.OnReadable; onReadable != nil {
			for _, s := range c.sessions.Iterate() {
				fd := s.Fd()
				if fd < 0 {
					continue
				}
				if c.ctx.mux.Wait(fd, api.Readable, api.NewTimeout(0)) == nil {
					onReadable(s)
					handled++
				}
			}
		}
		if handled > 0 {
			return handled, nil
		}
		if t.IsExpired() {
			return 0, api.ErrTimeout
		}
		slice := serveSlice
		if rem := t.Remaining(); rem >= 0 && rem < slice {
			slice = rem
		}
		err := c.ctx.mux.Wait(c.Fd(), api.Readable, api.NewTimeout(slice))
		if err != nil && !errors.Is(err, api.ErrTimeout) {
			return 0, disconnected("serve", err)
		}
	}
}

// closeSessions closes every registered session. Called with c.mu held.
func (c *Connection) closeSessions() {
	if c.sessions == nil {
		return
	}
	for _, s := range c.sessions.Iterate() {
		s.mu.Lock()
		s.closeLocked()
		s.mu.Unlock()
	}
}
