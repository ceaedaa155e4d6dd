// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package transport

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/control"
	"github.com/momentics/hioload-transport/pool"
	"github.com/momentics/hioload-transport/reactor"
	"go.uber.org/zap"
)

// Hooks are optional callbacks invoked by the core. Hooks run on the
// goroutine driving the Connection and must not call back into it.
type Hooks struct {
	// Outbound transforms a payload before it is staged for sending.
	Outbound func(p []byte) ([]byte, error)
	// Inbound inspects each newly received span in place. An error
	// disconnects the Connection.
	Inbound func(p []byte) error
	// OnError runs on fatal outcomes before the Connection is force-closed.
	OnError func(c *Connection, err error)
	// OnSession runs for every session accepted by a listener.
	OnSession func(s *Connection)
	// OnReadable runs when a watched session has data to receive.
	OnReadable func(s *Connection)
}

// Option configures a Context.
type Option func(*Context)

// WithBackend overrides the backend named in the configuration.
func WithBackend(b api.Backend) Option {
	return func(x *Context) { x.backend = b; x.backendSet = true }
}

// WithMultiplexer supplies the multiplexer directly.
func WithMultiplexer(m api.Multiplexer) Option {
	return func(x *Context) { x.mux = m }
}

// WithLoop shares an already running event loop.
func WithLoop(l *reactor.Loop) Option {
	return func(x *Context) { x.loop = l }
}

// WithHooks installs hooks.
func WithHooks(h Hooks) Option {
	return func(x *Context) { x.hooks = h }
}

// WithLogger sets the logger; it defaults to the global zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(x *Context) { x.log = l }
}

// WithMetrics shares a metrics registry.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(x *Context) { x.metrics = m }
}

// WithDebug shares a debug probe registry.
func WithDebug(d *control.DebugProbes) Option {
	return func(x *Context) { x.debug = d }
}

// WithSocketWrapper wraps every connected socket (client and session)
// before the core uses it.
func WithSocketWrapper(fn func(api.Socket) api.Socket) Option {
	return func(x *Context) { x.wrap = fn }
}

// Context holds what Connections created from it share.
type Context struct {
	id         uuid.UUID
	cfg        *control.Config
	backend    api.Backend
	backendSet bool
	mux        api.Multiplexer
	loop       *reactor.Loop
	ownLoop    bool
	hooks      Hooks
	metrics    *control.MetricsRegistry
	debug      *control.DebugProbes
	log        *zap.Logger
	wrap       func(api.Socket) api.Socket
	rpool      *pool.BytePool
	wpool      *pool.BytePool
}

// NewContext validates cfg and prepares the multiplexer. A nil cfg uses
// control.DefaultConfig. The event loop backend starts its own loop unless
// one is supplied with WithLoop.
func NewContext(cfg *control.Config, opts ...Option) (*Context, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	x := &Context{id: uuid.New(), cfg: cfg}
	for _, opt := range opts {
		opt(x)
	}
	if !x.backendSet {
		b, err := api.ParseBackend(cfg.Backend)
		if err != nil {
			return nil, err
		}
		x.backend = b
	}
	if x.log == nil {
		x.log = zap.L().Named("transport")
	}
	x.log = x.log.With(zap.String("ctx", x.id.String()))
	if x.metrics == nil {
		x.metrics = control.NewMetricsRegistry()
	}
	if x.debug == nil {
		x.debug = control.NewDebugProbes()
		control.RegisterPlatformProbes(x.debug)
	}

	if x.mux == nil {
		if x.backend == api.BackendEventLoop && x.loop == nil {
			loop, err := reactor.NewLoop(x.log)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", api.ErrConfiguration, err)
			}
			loop.PinTo(x.cfg.LoopCPU)
			loop.SetWorkers(x.cfg.LoopWorkers)
			loop.Start()
			x.loop, x.ownLoop = loop, true
			x.debug.RegisterProbe(x.probeName("loop"), func() any { return loop.Stats() })
		}
		mux, err := reactor.New(x.backend, x.loop)
		if err != nil {
			x.Close()
			return nil, err
		}
		x.mux = mux
	} else if lm, ok := x.mux.(*reactor.LoopMultiplexer); ok && x.loop == nil {
		x.loop = lm.Loop()
	}
	x.backend = x.mux.Backend()
	if x.backend == api.BackendEventLoop && x.loop == nil {
		x.Close()
		return nil, fmt.Errorf("%w: event loop multiplexer without a reactor.Loop", api.ErrConfiguration)
	}

	x.rpool = pool.NewBytePool(cfg.ReadBufferSize)
	x.wpool = pool.NewBytePool(cfg.WriteBufferSize)

	x.debug.RegisterProbe(x.probeName("backend"), func() any { return x.backend.String() })
	x.debug.RegisterProbe(x.probeName("buffers"), func() any {
		return map[string]pool.Stats{"read": x.rpool.Stats(), "write": x.wpool.Stats()}
	})
	x.log.Debug("context ready", zap.Stringer("backend", x.backend))
	return x, nil
}

// ID identifies the Context in logs and debug probes.
func (x *Context) ID() uuid.UUID { return x.id }

// Config returns the configuration in use. It must not be modified.
func (x *Context) Config() *control.Config { return x.cfg }

// Backend returns the multiplexer backend.
func (x *Context) Backend() api.Backend { return x.backend }

// Multiplexer returns the multiplexer used for every wait.
func (x *Context) Multiplexer() api.Multiplexer { return x.mux }

// Loop returns the event loop, nil unless the backend is eventloop.
func (x *Context) Loop() *reactor.Loop { return x.loop }

// Metrics returns the metrics registry.
func (x *Context) Metrics() *control.MetricsRegistry { return x.metrics }

// Debug returns the debug probe registry.
func (x *Context) Debug() *control.DebugProbes { return x.debug }

// Logger returns the Context logger.
func (x *Context) Logger() *zap.Logger { return x.log }

// Close stops an owned event loop and drops the Context probes.
// Connections must be closed first.
func (x *Context) Close() error {
	x.debug.UnregisterProbe(x.probeName("backend"))
	x.debug.UnregisterProbe(x.probeName("buffers"))
	x.debug.UnregisterProbe(x.probeName("loop"))
	if x.ownLoop && x.loop != nil {
		return x.loop.Close()
	}
	return nil
}

func (x *Context) probeName(what string) string {
	return "transport." + x.id.String() + "." + what
}

func (x *Context) wrapSocket(s api.Socket) api.Socket {
	if x.wrap != nil {
		return x.wrap(s)
	}
	return s
}

// NewConnection looks up the entry for role on the Context backend and
// initializes a Connection in the uninit state.
func (x *Context) NewConnection(role api.Role) (*Connection, error) {
	entry, err := Lookup(role, x.backend)
	if err != nil {
		return nil, err
	}
	c := newConnection(x, role, entry)
	if err := c.Init(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dial opens and starts a client Connection to the configured address.
func (x *Context) Dial() (*Connection, error) {
	c, err := x.NewConnection(api.RoleClient)
	if err != nil {
		return nil, err
	}
	if err := c.Open(); err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Listen opens a listener on the configured address.
func (x *Context) Listen() (*Connection, error) {
	c, err := x.NewConnection(api.RoleListener)
	if err != nil {
		return nil, err
	}
	if err := c.Open(); err != nil {
		return nil, err
	}
	return c, nil
}

// Attach wraps an already connected socket into a ready Connection of role
// client or session. The Connection takes ownership of s.
func (x *Context) Attach(role api.Role, s api.Socket) (*Connection, error) {
	if role == api.RoleListener {
		return nil, fmt.Errorf("%w: cannot attach a listener", api.ErrLogic)
	}
	if s == nil || s.Fd() < 0 {
		return nil, fmt.Errorf("%w: attach needs an open socket", api.ErrConfiguration)
	}
	c, err := x.NewConnection(role)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bind(x.wrapSocket(s), nil)
	return c, nil
}
