// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package transport

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-transport/api"
	"go.uber.org/zap"
)

// Entry is the operation set of one (role, backend) pair. Connection methods
// call it with the connection lock held; callers using an Entry directly
// must serialize operations on a Connection themselves.
type Entry interface {
	Init(c *Connection) error
	Uninit(c *Connection) error
	Open(c *Connection) error
	Close(c *Connection) error
	Start(c *Connection) error
	Stop(c *Connection) error
	Send(c *Connection, p []byte) (int, error)
	Receive(c *Connection) (int, error)
	Check(c *Connection) (int, error)
	// Error runs on fatal outcomes before the Connection is force-closed.
	Error(c *Connection, err error)
}

type entryKey struct {
	role    api.Role
	backend api.Backend
}

// entries is built once and never mutated.
var entries = func() map[entryKey]Entry {
	m := make(map[entryKey]Entry)
	for _, b := range []api.Backend{api.BackendPoll, api.BackendSelect, api.BackendEventLoop} {
		m[entryKey{api.RoleClient, b}] = &clientEntry{base{backend: b}}
		m[entryKey{api.RoleListener, b}] = &listenerEntry{base{backend: b}}
		m[entryKey{api.RoleSession, b}] = &sessionEntry{base{backend: b}}
	}
	return m
}()

// Lookup returns the Entry for role on backend.
func Lookup(role api.Role, backend api.Backend) (Entry, error) {
	e, ok := entries[entryKey{role, backend}]
	if !ok {
		return nil, api.NewError(api.ErrCodeConfiguration, "no transport entry").
			WithContext("role", role.String()).WithContext("backend", backend.String())
	}
	return e, nil
}

// base carries the operations every role shares.
type base struct {
	backend api.Backend
}

func (b *base) Init(c *Connection) error {
	if c.inited {
		return fmt.Errorf("%w: already initialized", api.ErrLogic)
	}
	c.inited = true
	return nil
}

func (b *base) Uninit(c *Connection) error {
	if c.State() != api.StateClosed && c.State() != api.StateUninit {
		c.closeLocked()
	}
	c.inited = false
	c.setState(api.StateUninit)
	return nil
}

// Close is legal in every state and idempotent.
func (b *base) Close(c *Connection) error {
	c.closeLocked()
	return nil
}

func (b *base) Start(c *Connection) error {
	if err := c.allowed(opStart); err != nil {
		return err
	}
	c.setState(api.StateStart)
	return nil
}

func (b *base) Stop(c *Connection) error {
	if err := c.allowed(opStop); err != nil {
		return err
	}
	c.setState(api.StateStop)
	return nil
}

func (b *base) Send(c *Connection, p []byte) (int, error) {
	if err := c.allowed(opIO); err != nil {
		return 0, err
	}
	hooks := c.ctx.hooks
	if hooks.Outbound != nil {
		out, err := hooks.Outbound(p)
		if err != nil {
			return 0, fmt.Errorf("%w: outbound hook: %v", api.ErrLogic, err)
		}
		p = out
	}
	t := api.NewTimeout(c.ctx.cfg.WriteTimeout)
	n, err := c.sendAll(p, t)
	c.log.Debug("send", zap.Int("staged", n), zap.Int("pending", c.Pending()), zap.Error(err))
	return n, c.settle("send", err)
}

func (b *base) Receive(c *Connection) (int, error) {
	return b.receive(c, api.NewTimeout(c.ctx.cfg.ReadTimeout))
}

// Check is Receive with a zero budget; nothing available is not an error.
func (b *base) Check(c *Connection) (int, error) {
	n, err := b.receive(c, api.NewTimeout(0))
	if errors.Is(err, api.ErrTimeout) {
		return 0, nil
	}
	return n, err
}

func (b *base) receive(c *Connection, t *api.Timeout) (int, error) {
	if err := c.allowed(opIO); err != nil {
		return 0, err
	}
	n, err := c.recvSome(t)
	if n > 0 && c.ctx.hooks.Inbound != nil && c.rbuf != nil {
		span := c.rbuf.ReadStartDest()
		if herr := c.ctx.hooks.Inbound(span[len(span)-n:]); herr != nil && err == nil {
			err = disconnected("inbound hook", herr)
		}
	}
	if t.Budget() == 0 && errors.Is(err, api.ErrTimeout) {
		return n, err
	}
	c.log.Debug("receive", zap.Int("n", n), zap.Error(err))
	return n, c.settle("receive", err)
}

func (b *base) Error(c *Connection, err error) {
	if c.ctx.hooks.OnError != nil {
		c.ctx.hooks.OnError(c, err)
	}
}

// closeLocked releases everything the Connection holds and moves to closed.
// Called with c.mu held.
func (c *Connection) closeLocked() {
	if c.State() == api.StateClosed {
		return
	}
	switch c.role {
	case api.RoleListener:
		c.closeSessions()
	case api.RoleSession:
		if c.parent != nil && c.parent.sessions != nil {
			c.parent.sessions.Remove(c.id)
		}
	}
	wasOpen := c.State().HasBuffers() || c.sock != nil || c.handle != nil
	c.release()
	c.setState(api.StateClosed)
	if wasOpen {
		c.log.Info("closed")
	}
}
