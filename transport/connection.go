// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/internal/session"
	"github.com/momentics/hioload-transport/internal/socket"
	"github.com/momentics/hioload-transport/pool"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// Connection is one role-tagged transport endpoint. It exclusively owns its
// socket and buffers. Operations are not reentrant: a second operation
// issued while one is in flight fails with api.ErrLogic.
type Connection struct {
	ctx   *Context
	entry Entry
	role  api.Role
	id    string
	log   *zap.Logger

	// mu is held for the duration of every operation.
	mu    sync.Mutex
	state atomic.Int32

	inited bool
	sock   api.Socket
	handle *socket.Handle
	rbuf   *pool.ByteBuffer
	wbuf   *pool.ByteBuffer

	// listener only
	sessions *session.Registry[*Connection]
	watched  bool

	// session only
	parent *Connection
}

func newConnection(x *Context, role api.Role, entry Entry) *Connection {
	id := xid.New().String()
	return &Connection{
		ctx:   x,
		entry: entry,
		role:  role,
		id:    id,
		log:   x.log.With(zap.String("conn", id), zap.Stringer("role", role)),
	}
}

// ID returns the connection id; for sessions it is the registry key.
func (c *Connection) ID() string { return c.id }

// Role returns the connection role.
func (c *Connection) Role() api.Role { return c.role }

// State returns the lifecycle state.
func (c *Connection) State() api.State { return api.State(c.state.Load()) }

// Context returns the owning Context.
func (c *Connection) Context() *Context { return c.ctx }

// Parent returns the listener that accepted a session, nil otherwise.
func (c *Connection) Parent() *Connection { return c.parent }

// ReadBuffer returns the received bytes staging buffer, nil while no buffers
// are held. Consume data with ReadStartDest and Skip between operations.
func (c *Connection) ReadBuffer() *pool.ByteBuffer { return c.rbuf }

// WriteBuffer returns the outbound staging buffer, nil while no buffers are held.
func (c *Connection) WriteBuffer() *pool.ByteBuffer { return c.wbuf }

// Pending returns the number of staged bytes not yet sent.
func (c *Connection) Pending() int {
	if c.wbuf == nil {
		return 0
	}
	return c.wbuf.Size()
}

// Sessions returns a snapshot of the sessions accepted by a listener.
func (c *Connection) Sessions() []*Connection {
	if c.sessions == nil {
		return nil
	}
	return c.sessions.Iterate()
}

// Session finds an accepted session by id.
func (c *Connection) Session(id string) (*Connection, bool) {
	if c.sessions == nil {
		return nil, false
	}
	return c.sessions.Find(id)
}

// Fd returns the descriptor of the underlying socket, -1 when none.
func (c *Connection) Fd() int {
	switch {
	case c.sock != nil:
		return c.sock.Fd()
	case c.handle != nil:
		return c.handle.Fd()
	}
	return -1
}

type addresser interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// LocalAddr returns the local socket address, nil when unknown.
func (c *Connection) LocalAddr() net.Addr {
	if a, ok := c.sock.(addresser); ok {
		return a.LocalAddr()
	}
	if c.handle != nil {
		return c.handle.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the peer address, nil for listeners or when unknown.
func (c *Connection) RemoteAddr() net.Addr {
	if a, ok := c.sock.(addresser); ok {
		return a.RemoteAddr()
	}
	if c.handle != nil && c.role != api.RoleListener {
		return c.handle.RemoteAddr()
	}
	return nil
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s/%s[%s]", c.role, c.id, c.State())
}

// Init prepares role-local state.
func (c *Connection) Init() error {
	return c.run(func() error { return c.entry.Init(c) })
}

// Uninit tears down role-local state, closing the Connection first if needed.
func (c *Connection) Uninit() error {
	return c.run(func() error { return c.entry.Uninit(c) })
}

// Open connects a client or binds a listener and moves to ready.
func (c *Connection) Open() error {
	return c.run(func() error { return c.entry.Open(c) })
}

// Close releases buffers and the socket. Closing twice is a no-op.
func (c *Connection) Close() error {
	return c.run(func() error { return c.entry.Close(c) })
}

// Start enables send and receive.
func (c *Connection) Start() error {
	return c.run(func() error { return c.entry.Start(c) })
}

// Stop suspends send and receive; buffers are retained.
func (c *Connection) Stop() error {
	return c.run(func() error { return c.entry.Stop(c) })
}

// Send stages p and drains the write buffer within the write timeout. It
// returns how many bytes of p were staged; on success that is all of them
// and nothing is pending. After api.ErrTimeout the staged remainder is sent
// first by the next Send.
func (c *Connection) Send(p []byte) (n int, err error) {
	err = c.run(func() error {
		n, err = c.entry.Send(c, p)
		return err
	})
	return n, err
}

// Receive fills the read buffer within the read timeout and returns the
// number of new bytes.
func (c *Connection) Receive() (n int, err error) {
	err = c.run(func() error {
		n, err = c.entry.Receive(c)
		return err
	})
	return n, err
}

// Check is a non-blocking Receive; no data available is (0, nil).
func (c *Connection) Check() (n int, err error) {
	err = c.run(func() error {
		n, err = c.entry.Check(c)
		return err
	})
	return n, err
}

func (c *Connection) run(op func() error) error {
	if !c.mu.TryLock() {
		return fmt.Errorf("%w: operation already in flight on %s", api.ErrLogic, c.id)
	}
	defer c.mu.Unlock()
	return op()
}

// bind installs a connected socket, allocates buffers and moves to ready.
// Called with c.mu held.
func (c *Connection) bind(s api.Socket, h *socket.Handle) {
	c.sock = s
	c.handle = h
	limit := c.ctx.cfg.MaxBufferSize
	c.rbuf = pool.NewByteBuffer(c.ctx.rpool, limit)
	c.wbuf = pool.NewByteBuffer(c.ctx.wpool, limit)
	c.setState(api.StateReady)
	c.ctx.debug.RegisterProbe(c.probeName(), func() any { return c.State().String() })
}

// release drops buffers and closes the socket. Called with c.mu held.
func (c *Connection) release() {
	if c.watched && c.ctx.loop != nil {
		c.ctx.loop.Forget(c.Fd())
		c.watched = false
	}
	if c.rbuf != nil {
		c.rbuf.Release()
		c.rbuf = nil
	}
	if c.wbuf != nil {
		c.wbuf.Release()
		c.wbuf = nil
	}
	if c.sock != nil {
		if err := c.sock.Close(); err != nil {
			c.log.Debug("socket close", zap.Error(err))
		}
		c.sock = nil
	}
	if c.handle != nil {
		// A wrapper may not have closed the handle it wraps.
		_ = c.handle.Close()
		c.handle = nil
	}
	c.ctx.debug.UnregisterProbe(c.probeName())
}

func (c *Connection) probeName() string {
	return "transport.state." + c.id
}
