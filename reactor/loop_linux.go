//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll event loop.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-transport/affinity"
	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/internal/concurrency"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Callback is invoked by the loop when a watched descriptor becomes ready.
// The watch is disarmed while the callback runs and re-armed when it returns.
type Callback func(fd int, ev api.Direction)

type waiter struct {
	dir api.Direction
	ch  chan api.Direction
}

type watch struct {
	armed   uint32
	waiters []*waiter
	persist api.Direction
	cb      Callback
	busy    bool
}

type readyEvent struct {
	fd int
	ev api.Direction
}

// Loop is a level-triggered epoll event loop. Callers either park on one-shot
// waiters through LoopMultiplexer or install persistent callbacks with Watch.
type Loop struct {
	epfd    int
	wakefd  int
	log     *zap.Logger
	mu      sync.Mutex
	watches map[int]*watch
	ready   *queue.Queue
	running atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
	stopped chan struct{}
	cpu     int
	workers int
	exec    *concurrency.Executor
}

// NewLoop creates an epoll instance and its wakeup eventfd. Run must be
// started before anything waits on the loop.
func NewLoop(log *zap.Logger) (*Loop, error) {
	if log == nil {
		log = zap.L()
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", osError("epoll_create1", err))
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", osError("eventfd", err))
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add: %w", osError("epoll_ctl", err))
	}
	return &Loop{
		epfd:    epfd,
		wakefd:  wakefd,
		log:     log.Named("reactor.loop"),
		watches: make(map[int]*watch),
		ready:   queue.New(),
		done:    make(chan struct{}),
		cpu:     -1,
		stopped: make(chan struct{}),
	}, nil
}

// Start runs the loop on its own goroutine.
func (l *Loop) Start() {
	if l.closed.Load() || !l.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		if err := l.run(); err != nil {
			l.log.Error("event loop stopped", zap.Error(err))
		}
	}()
}

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() && !l.closed.Load() }

// SetWorkers sizes the pool that runs watch callbacks. Zero or less uses one
// worker per CPU. Call before Start.
func (l *Loop) SetWorkers(n int) { l.workers = n }

// Stats reports callback executor counters; nil before the loop runs.
func (l *Loop) Stats() map[string]int64 {
	l.mu.Lock()
	e := l.exec
	l.mu.Unlock()
	if e == nil {
		return nil
	}
	return e.Stats()
}

// PinTo makes Run lock its thread and pin it to cpu. Negative cpu leaves
// the thread unpinned. Call before Start.
func (l *Loop) PinTo(cpu int) { l.cpu = cpu }

// Done is closed once the loop has been closed.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run blocks dispatching readiness until Close is called.
func (l *Loop) Run() error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("reactor: event loop already running")
	}
	return l.run()
}

func (l *Loop) run() error {
	defer close(l.stopped)
	// A pinned thread stays locked and exits with this goroutine.
	if l.cpu >= 0 {
		if err := affinity.Pin(l.cpu); err != nil {
			l.log.Warn("event loop left unpinned", zap.Int("cpu", l.cpu), zap.Error(err))
		}
	}

	exec := concurrency.NewExecutor(l.workers, l.log)
	defer exec.Close()
	l.mu.Lock()
	l.exec = exec
	l.mu.Unlock()

	const maxEvents = 128
	var events [maxEvents]unix.EpollEvent
	// Callbacks the executor had no room for. Their watches stay busy, so
	// the backlog never holds more than one entry per descriptor.
	var backlog []func()
	for {
		wait := -1
		if len(backlog) > 0 {
			wait = 1
		}
		n, err := unix.EpollWait(l.epfd, events[:], wait)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			l.shutdown()
			return fmt.Errorf("epoll wait: %w", osError("epoll_wait", err))
		}

		l.mu.Lock()
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.wakefd {
				l.drainWake()
				continue
			}
			l.ready.Add(readyEvent{fd: fd, ev: fromEpoll(events[i].Events)})
		}
		dispatch := backlog
		for l.ready.Length() > 0 {
			re := l.ready.Remove().(readyEvent)
			if fn := l.deliver(re); fn != nil {
				dispatch = append(dispatch, fn)
			}
		}
		l.mu.Unlock()

		if l.closed.Load() {
			return nil
		}
		backlog = l.dispatch(exec, dispatch)
	}
}

// dispatch submits callbacks in order and returns those that did not fit.
func (l *Loop) dispatch(exec *concurrency.Executor, fns []func()) []func() {
	for i, fn := range fns {
		if err := exec.Submit(fn); err != nil {
			l.log.Debug("callbacks deferred", zap.Int("queued", len(fns)-i), zap.Error(err))
			return append([]func(){}, fns[i:]...)
		}
	}
	return nil
}

// deliver wakes waiters matching re and returns the persistent callback to
// run, if any. Called with l.mu held.
func (l *Loop) deliver(re readyEvent) func() {
	w := l.watches[re.fd]
	if w == nil {
		return nil
	}
	kept := w.waiters[:0]
	for _, wt := range w.waiters {
		if re.ev&(wt.dir|api.ErrorCondition) != 0 {
			wt.ch <- re.ev
			continue
		}
		kept = append(kept, wt)
	}
	w.waiters = kept

	var fn func()
	if w.cb != nil && !w.busy && re.ev&(w.persist|api.ErrorCondition) != 0 {
		w.busy = true
		cb, fd, ev := w.cb, re.fd, re.ev
		fn = func() {
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("callback panic", zap.Int("fd", fd), zap.Any("panic", r))
				}
				l.finish(fd)
			}()
			cb(fd, ev)
		}
	}
	l.rearm(re.fd, w)
	return fn
}

func (l *Loop) finish(fd int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w := l.watches[fd]; w != nil {
		w.busy = false
		l.rearm(fd, w)
	}
}

// Watch installs a persistent callback for fd. The callback fires for every
// readiness cycle matching dir until Unwatch.
func (l *Loop) Watch(fd int, dir api.Direction, cb Callback) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if cb == nil {
		return api.NewError(api.ErrCodeInvalidArgument, "nil callback")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.watchFor(fd)
	if w.cb != nil {
		return api.NewError(api.ErrCodeAlreadyExists, "descriptor already watched").WithContext("fd", fd)
	}
	w.cb = cb
	w.persist = dir
	if err := l.rearm(fd, w); err != nil {
		w.cb, w.persist = nil, 0
		return err
	}
	return nil
}

// Unwatch removes the persistent callback for fd. Pending one-shot waiters
// stay registered.
func (l *Loop) Unwatch(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.watches[fd]
	if w == nil || w.cb == nil {
		return api.ErrNotFound
	}
	w.cb, w.persist = nil, 0
	return l.rearm(fd, w)
}

// Forget drops every registration of fd. Call it before closing fd.
func (l *Loop) Forget(fd int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.watches[fd]
	if w == nil {
		return
	}
	for _, wt := range w.waiters {
		wt.ch <- api.ErrorCondition
	}
	w.waiters, w.cb, w.persist = nil, nil, 0
	l.rearm(fd, w)
}

func (l *Loop) await(fd int, dir api.Direction) (*waiter, error) {
	if l.closed.Load() {
		return nil, ErrLoopClosed
	}
	wt := &waiter{dir: dir, ch: make(chan api.Direction, 1)}
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.watchFor(fd)
	w.waiters = append(w.waiters, wt)
	if err := l.rearm(fd, w); err != nil {
		w.waiters = w.waiters[:len(w.waiters)-1]
		l.rearm(fd, w)
		return nil, err
	}
	return wt, nil
}

// cancel deregisters wt. Deregistration is how a timed-out wait is cancelled.
func (l *Loop) cancel(fd int, wt *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.watches[fd]
	if w == nil {
		return
	}
	for i, x := range w.waiters {
		if x == wt {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			break
		}
	}
	l.rearm(fd, w)
}

// watchFor returns the entry for fd, creating it. Called with l.mu held.
func (l *Loop) watchFor(fd int) *watch {
	w := l.watches[fd]
	if w == nil {
		w = &watch{}
		l.watches[fd] = w
	}
	return w
}

// rearm recomputes the epoll interest of fd from its waiters and callback.
// Called with l.mu held.
func (l *Loop) rearm(fd int, w *watch) error {
	var dir api.Direction
	for _, wt := range w.waiters {
		dir |= wt.dir
	}
	if w.cb != nil && !w.busy {
		dir |= w.persist
	}
	mask := toEpoll(dir)

	var err error
	switch {
	case mask == w.armed:
	case mask == 0:
		// The descriptor may already be closed; epoll dropped it then.
		_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	case w.armed == 0:
		ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
		err = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
		if err == unix.EEXIST {
			err = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
		}
	default:
		ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
		err = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
		if err == unix.ENOENT {
			// fd was closed and reused behind our back.
			err = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
		}
	}
	if err != nil {
		w.armed = 0
		if len(w.waiters) == 0 && w.cb == nil {
			delete(l.watches, fd)
		}
		return osError("epoll_ctl", err)
	}
	w.armed = mask
	if mask == 0 && len(w.waiters) == 0 && w.cb == nil {
		delete(l.watches, fd)
	}
	return nil
}

// Close stops the loop, releases waiters and closes the epoll descriptors.
func (l *Loop) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.wake()
	if l.running.Load() {
		<-l.stopped
	}
	l.shutdown()
	return nil
}

func (l *Loop) shutdown() {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.done)
		l.mu.Lock()
		l.watches = make(map[int]*watch)
		l.mu.Unlock()
		unix.Close(l.wakefd)
		unix.Close(l.epfd)
		l.log.Debug("event loop closed")
	})
}

func (l *Loop) wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(l.wakefd, buf[:])
}

func (l *Loop) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(l.wakefd, buf[:]); err != nil {
			return
		}
	}
}

func toEpoll(dir api.Direction) uint32 {
	var mask uint32
	if dir&api.Readable != 0 {
		mask |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if dir&api.Writable != 0 {
		mask |= unix.EPOLLOUT
	}
	if mask == 0 && dir&api.ErrorCondition != 0 {
		// EPOLLERR and EPOLLHUP are always reported; a bare error watch
		// still needs an entry in the interest list.
		mask = unix.EPOLLERR
	}
	return mask
}

func fromEpoll(events uint32) api.Direction {
	var dir api.Direction
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLPRI) != 0 {
		dir |= api.Readable
	}
	if events&unix.EPOLLOUT != 0 {
		dir |= api.Writable
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		dir |= api.ErrorCondition
	}
	return dir
}
