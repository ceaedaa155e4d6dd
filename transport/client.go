// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/control"
	"github.com/momentics/hioload-transport/internal/socket"
	"go.uber.org/zap"
)

type clientEntry struct{ base }

// Open resolves the configured address and tries each candidate in order
// within one connect budget. A fresh socket is created for every attempt
// after a failure and whenever the address family changes.
func (e *clientEntry) Open(c *Connection) error {
	if err := openable(c); err != nil {
		return err
	}
	cfg := c.ctx.cfg
	if cfg.Address == "" || cfg.Port == 0 {
		return fmt.Errorf("%w: client needs address and port", api.ErrConfiguration)
	}
	t := api.NewTimeout(cfg.ConnectTimeout)
	ips, err := resolve(cfg.Address, t)
	if err != nil {
		return err
	}

	var (
		h    *socket.Handle
		last error
	)
	for _, ip := range ips {
		family := socket.FamilyOf(ip)
		if h == nil || h.Family() != family {
			if h != nil {
				h.Close()
			}
			if h, err = socket.Create(family, socket.SockStream, socket.ProtoTCP); err != nil {
				h, last = nil, err
				continue
			}
		}
		addr := &net.TCPAddr{IP: ip, Port: cfg.Port}
		err = h.Connect(addr, t, c.ctx.mux)
		if err == nil {
			c.bind(c.ctx.wrapSocket(h), h)
			c.ctx.metrics.Add(control.MetricConnectionsOpened, 1)
			c.log.Info("connected", zap.Stringer("remote", addr))
			return nil
		}
		c.log.Debug("connect attempt failed", zap.Stringer("addr", addr), zap.Error(err))
		last = err
		h.Close()
		h = nil
		if errors.Is(err, api.ErrTimeout) || t.IsExpired() {
			break
		}
	}
	return openFailure(last)
}

func openable(c *Connection) error {
	if !c.inited {
		return fmt.Errorf("%w: open before init", api.ErrLogic)
	}
	return c.allowed(opOpen)
}

// openFailure maps the last connect error onto the public taxonomy.
func openFailure(err error) error {
	switch {
	case err == nil:
		return fmt.Errorf("%w: no address candidates", api.ErrConfiguration)
	case errors.Is(err, api.ErrTimeout):
		return api.ErrTimeout
	case errors.Is(err, api.ErrConfiguration):
		return err
	}
	return api.Wrap(api.ErrCodeDisconnected, "connect", err)
}

// resolve turns host into candidate IPs. Literal addresses skip the resolver.
func resolve(host string, t *api.Timeout) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	ctx := context.Background()
	if rem := t.Remaining(); rem > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rem)
		defer cancel()
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, api.Wrap(api.ErrCodeConfiguration, "resolve "+host, err)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

func hostPort(cfg *control.Config) string {
	return net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
}
