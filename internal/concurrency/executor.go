// File: internal/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor runs tasks on a fixed set of worker goroutines fed from one bounded
// queue. Submit never blocks: a full queue is reported to the caller, which
// decides whether to retry later.

package concurrency

import (
	"errors"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrExecutorClosed = errors.New("executor closed")
	ErrExecutorFull   = errors.New("executor queue full")
)

// queuePerWorker sizes the shared task queue.
const queuePerWorker = 4

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	tasks      chan TaskFunc
	closeCh    chan struct{}
	closed     atomic.Bool
	numWorkers int
	log        *zap.Logger

	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	rejectedTasks  atomic.Int64
}

// NewExecutor starts numWorkers workers. If numWorkers <= 0, defaults to
// runtime.NumCPU().
func NewExecutor(numWorkers int, log *zap.Logger) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Executor{
		tasks:      make(chan TaskFunc, numWorkers*queuePerWorker),
		closeCh:    make(chan struct{}),
		numWorkers: numWorkers,
		log:        log,
	}
	for i := 0; i < numWorkers; i++ {
		go e.work()
	}
	return e
}

// Submit enqueues a task. It returns ErrExecutorFull when every queue slot is
// taken and ErrExecutorClosed after Close.
func (e *Executor) Submit(task TaskFunc) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	select {
	case e.tasks <- task:
		e.totalTasks.Add(1)
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	default:
		e.rejectedTasks.Add(1)
		return ErrExecutorFull
	}
}

// NumWorkers returns the number of workers.
func (e *Executor) NumWorkers() int { return e.numWorkers }

// Close stops the workers once their current task returns. Queued tasks are
// dropped. Close does not wait, so a task may close its own executor.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closeCh)
	}
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total, done := e.totalTasks.Load(), e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"rejected_tasks":  e.rejectedTasks.Load(),
		"num_workers":     int64(e.numWorkers),
	}
}

func (e *Executor) work() {
	for {
		select {
		case <-e.closeCh:
			return
		case task := <-e.tasks:
			e.execute(task)
		}
	}
}

// execute runs the task, recovering from panics to keep the worker alive.
func (e *Executor) execute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("task panic", zap.Any("panic", r))
		}
		e.completedTasks.Add(1)
	}()
	task()
}
