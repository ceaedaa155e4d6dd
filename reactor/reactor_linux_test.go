//go:build linux
// +build linux

package reactor_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-transport/affinity"
	"github.com/momentics/hioload-transport/api"
	"github.com/momentics/hioload-transport/reactor"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func startLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	loop, err := reactor.NewLoop(zap.NewNop())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	loop.Start()
	deadline := time.Now().Add(time.Second)
	for !loop.Running() {
		if time.Now().After(deadline) {
			t.Fatal("loop did not start")
		}
		time.Sleep(time.Millisecond)
	}
	t.Cleanup(func() { loop.Close() })
	return loop
}

func backends(t *testing.T) map[string]api.Multiplexer {
	return map[string]api.Multiplexer{
		"select":    reactor.Select{},
		"poll":      reactor.Poll{},
		"eventloop": reactor.NewLoopMultiplexer(startLoop(t)),
	}
}

func TestZeroTimeoutPollsOnce(t *testing.T) {
	for name, mux := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := socketPair(t)
			start := time.Now()
			err := mux.Wait(a, api.Readable, api.NewTimeout(0))
			if !errors.Is(err, api.ErrTimeout) {
				t.Fatalf("Wait = %v, want ErrTimeout", err)
			}
			if d := time.Since(start); d > 50*time.Millisecond {
				t.Errorf("zero timeout blocked for %v", d)
			}
		})
	}
}

func TestReadableAfterPeerWrite(t *testing.T) {
	for name, mux := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, b := socketPair(t)
			go func() {
				time.Sleep(20 * time.Millisecond)
				unix.Write(b, []byte("ping"))
			}()
			if err := mux.Wait(a, api.Readable, api.NewTimeout(2*time.Second)); err != nil {
				t.Fatalf("Wait readable: %v", err)
			}
			buf := make([]byte, 8)
			n, err := unix.Read(a, buf)
			if err != nil || string(buf[:n]) != "ping" {
				t.Fatalf("read = %q, %v", buf[:n], err)
			}
		})
	}
}

func TestWritableImmediately(t *testing.T) {
	for name, mux := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := socketPair(t)
			if err := mux.Wait(a, api.Writable, api.NewTimeout(time.Second)); err != nil {
				t.Fatalf("Wait writable: %v", err)
			}
		})
	}
}

func TestBudgetElapses(t *testing.T) {
	for name, mux := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := socketPair(t)
			const budget = 60 * time.Millisecond
			start := time.Now()
			err := mux.Wait(a, api.Readable, api.NewTimeout(budget))
			if !errors.Is(err, api.ErrTimeout) {
				t.Fatalf("Wait = %v, want ErrTimeout", err)
			}
			if d := time.Since(start); d < budget-5*time.Millisecond {
				t.Errorf("returned after %v, budget %v", d, budget)
			}
		})
	}
}

func TestPeerCloseIsReady(t *testing.T) {
	for name, mux := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
			if err != nil {
				t.Fatal(err)
			}
			defer unix.Close(fds[0])
			unix.Close(fds[1])
			if err := mux.Wait(fds[0], api.Readable, api.NewTimeout(time.Second)); err != nil {
				t.Fatalf("Wait after peer close: %v", err)
			}
		})
	}
}

func TestSelectRejectsLargeDescriptor(t *testing.T) {
	err := reactor.Select{}.Wait(reactor.SelectLimit+5, api.Readable, api.NewTimeout(0))
	if !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("Wait = %v, want ErrNotSupported", err)
	}
}

func TestPollInvalidDescriptorIsFatal(t *testing.T) {
	a, _ := socketPair(t)
	dup, err := unix.Dup(a)
	if err != nil {
		t.Fatal(err)
	}
	unix.Close(dup)
	err = reactor.Poll{}.Wait(dup, api.Readable, api.NewTimeout(time.Second))
	var osErr *api.OSError
	if !errors.As(err, &osErr) {
		t.Fatalf("Wait = %v, want *api.OSError", err)
	}
	if api.Classify(err) != api.OutcomeFatal {
		t.Errorf("Classify = %v, want fatal", api.Classify(err))
	}
}

func TestLoopWatchFiresUntilUnwatch(t *testing.T) {
	loop := startLoop(t)
	a, b := socketPair(t)
	var hits atomic.Int32
	fired := make(chan struct{}, 16)
	err := loop.Watch(a, api.Readable, func(fd int, ev api.Direction) {
		buf := make([]byte, 64)
		unix.Read(fd, buf)
		hits.Add(1)
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := loop.Watch(a, api.Readable, func(int, api.Direction) {}); !errors.Is(err, api.ErrAlreadyExists) {
		t.Errorf("second Watch = %v, want ErrAlreadyExists", err)
	}
	for i := 0; i < 2; i++ {
		unix.Write(b, []byte("x"))
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d not fired", i)
		}
	}
	if err := loop.Unwatch(a); err != nil {
		t.Fatalf("Unwatch: %v", err)
	}
	unix.Write(b, []byte("y"))
	time.Sleep(50 * time.Millisecond)
	if got := hits.Load(); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
}

func TestLoopCloseReleasesWaiters(t *testing.T) {
	loop := startLoop(t)
	mux := reactor.NewLoopMultiplexer(loop)
	a, _ := socketPair(t)
	errc := make(chan error, 1)
	go func() { errc <- mux.Wait(a, api.Readable, api.NewTimeout(api.Infinite)) }()
	time.Sleep(20 * time.Millisecond)
	loop.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, reactor.ErrLoopClosed) {
			t.Fatalf("Wait = %v, want ErrLoopClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by Close")
	}
}

func TestNewBackend(t *testing.T) {
	if _, err := reactor.New(api.BackendEventLoop, nil); !errors.Is(err, api.ErrConfiguration) {
		t.Errorf("eventloop without loop = %v, want ErrConfiguration", err)
	}
	mux, err := reactor.New(api.BackendSelect, nil)
	if err != nil || mux.Backend() != api.BackendSelect {
		t.Errorf("New(select) = %v, %v", mux, err)
	}
}

func TestPinnedLoopServesWaits(t *testing.T) {
	cpus, err := affinity.Allowed()
	if err != nil || len(cpus) == 0 {
		t.Skipf("affinity unavailable: %v", err)
	}
	loop, err := reactor.NewLoop(zap.NewNop())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	loop.PinTo(cpus[len(cpus)-1])
	loop.Start()
	defer loop.Close()
	if !loop.Running() {
		t.Fatal("Start must mark the loop running")
	}

	a, _ := socketPair(t)
	mux := reactor.NewLoopMultiplexer(loop)
	if err := mux.Wait(a, api.Writable, api.NewTimeout(time.Second)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestLoopCallbacksShareBoundedWorkers(t *testing.T) {
	loop, err := reactor.NewLoop(zap.NewNop())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	loop.SetWorkers(1)
	loop.Start()
	defer loop.Close()

	const watched = 12
	fired := make(chan int, watched)
	var running, peak atomic.Int32
	for i := 0; i < watched; i++ {
		a, b := socketPair(t)
		id := i
		err := loop.Watch(a, api.Readable, func(fd int, _ api.Direction) {
			if n := running.Add(1); n > peak.Load() {
				peak.Store(n)
			}
			var buf [16]byte
			unix.Read(fd, buf[:])
			time.Sleep(time.Millisecond)
			running.Add(-1)
			loop.Unwatch(fd)
			fired <- id
		})
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		if _, err := unix.Write(b, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	seen := map[int]bool{}
	timeout := time.After(5 * time.Second)
	for len(seen) < watched {
		select {
		case id := <-fired:
			seen[id] = true
		case <-timeout:
			t.Fatalf("only %d of %d callbacks ran", len(seen), watched)
		}
	}
	if peak.Load() != 1 {
		t.Errorf("peak concurrent callbacks = %d, want 1", peak.Load())
	}
	if got := loop.Stats()["num_workers"]; got != 1 {
		t.Errorf("num_workers = %d, want 1", got)
	}
}
