// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package transport

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/control"
	"go.uber.org/zap"
)

// errDrained reports that the read buffer has no room left and nothing was read.
var errDrained = fmt.Errorf("%w: read buffer full, consume it first", api.ErrLogic)

// sendAll stages payload into the write buffer, in chunks when it exceeds
// the buffer limit, and drains until everything is sent. Bytes leave the
// buffer only as the socket accepts them. It returns the number of payload
// bytes staged. A zero-length send counts as would-block. The budget bounds
// the whole call, also while the socket keeps accepting bytes; a zero budget
// still gets one send attempt.
func (c *Connection) sendAll(payload []byte, t *api.Timeout) (int, error) {
	staged := 0
	sent := false
	for {
		if staged < len(payload) {
			n, err := c.wbuf.Write(payload[staged:])
			staged += n
			if err != nil && !errors.Is(err, api.ErrResourceExhausted) {
				return staged, err
			}
		}
		if c.wbuf.Size() == 0 {
			if staged < len(payload) {
				return staged, fmt.Errorf("%w: write buffer cannot hold data", api.ErrLogic)
			}
			return staged, nil
		}
		if sent && t.IsExpired() {
			return staged, api.ErrTimeout
		}

		n, err := c.sock.Send(c.wbuf.ReadStartDest())
		outcome := api.Classify(err)
		if outcome == api.OutcomeDone && n > 0 {
			sent = true
			c.wbuf.Skip(n)
			c.ctx.metrics.Add(control.MetricBytesSent, int64(n))
			continue
		}
		if outcome != api.OutcomeDone && outcome != api.OutcomeWouldBlock {
			return staged, disconnected("send", err)
		}
		if err := c.await(api.Writable, t); err != nil {
			return staged, err
		}
	}
}

// recvSome reads into the read buffer until it is full or no more data is
// immediately available. It only waits for readability while nothing has
// been read. An orderly peer close after data was read returns that data
// first; the next call reports it.
func (c *Connection) recvSome(t *api.Timeout) (int, error) {
	total := 0
	for {
		if c.rbuf.Left() == 0 {
			if total > 0 {
				return total, nil
			}
			c.rbuf.Reserve(1)
			if c.rbuf.Left() == 0 {
				return 0, errDrained
			}
		}
		n, err := c.sock.Recv(c.rbuf.WriteStartDest())
		switch api.Classify(err) {
		case api.OutcomeDone:
			if n == 0 {
				return total, nil
			}
			c.rbuf.Commit(n)
			total += n
			c.ctx.metrics.Add(control.MetricBytesReceived, int64(n))
		case api.OutcomeWouldBlock:
			if total > 0 {
				return total, nil
			}
			if err := c.await(api.Readable, t); err != nil {
				return 0, err
			}
		case api.OutcomeClosed:
			if total > 0 {
				return total, nil
			}
			return 0, disconnected("recv", err)
		default:
			return total, disconnected("recv", err)
		}
	}
}

// await waits on the Context multiplexer. An expired budget is a timeout
// without waiting; wait failures other than timeout are fatal.
func (c *Connection) await(dir api.Direction, t *api.Timeout) error {
	if t.IsExpired() {
		return api.ErrTimeout
	}
	err := c.ctx.mux.Wait(c.sock.Fd(), dir, t)
	switch api.Classify(err) {
	case api.OutcomeDone:
		return nil
	case api.OutcomeTimeout:
		return api.ErrTimeout
	}
	return disconnected("wait", err)
}

func disconnected(op string, cause error) error {
	return api.Wrap(api.ErrCodeDisconnected, op, cause)
}

// settle applies the lifecycle consequences of an orchestration result:
// timeouts are counted and leave the state alone, disconnects run the error
// hook and force disconnect then closed. Called with c.mu held.
func (c *Connection) settle(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, api.ErrTimeout):
		c.ctx.metrics.Add(control.MetricTimeouts, 1)
		c.log.Warn("timeout", zap.String("op", op), zap.Int("pending", c.Pending()))
		return err
	case errors.Is(err, api.ErrDisconnected):
		c.fail(err)
		return err
	}
	return err
}

// fail is the fatal path: error hooks, then disconnect, then closed.
func (c *Connection) fail(err error) {
	c.log.Error("disconnected", zap.Error(err))
	c.entry.Error(c, err)
	if c.allowed(opDisconnect) == nil {
		c.setState(api.StateDisconnect)
	}
	c.ctx.metrics.Add(control.MetricDisconnects, 1)
	c.closeLocked()
}
