// File: internal/concurrency/executor.go
// Package concurrency implements the task executor that runs stream
// consumers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor keeps a FIFO of pending tasks and a set of worker goroutines.
// A worker is added whenever a task arrives and no worker is idle, up to
// the configured maximum. Once every worker is busy, Submit queues at most
// the configured backlog and then refuses with ErrExecutorSaturated. Stream
// consumers run with no backlog: a consumer must start right away, because
// the producer feeding it blocks until it reads.

package concurrency

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

var (
	// ErrExecutorClosed is returned by Submit after Close.
	ErrExecutorClosed = errors.New("executor is closed")
	// ErrExecutorSaturated is returned by Submit when every worker is busy
	// and the backlog is full.
	ErrExecutorSaturated = errors.New("executor is saturated")
)

// Executor manages a pool of worker goroutines.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	closed  bool
	workers int
	idle    int
	running int
	max     int
	backlog int
	onPanic func(v any)
	wg      sync.WaitGroup

	// statistics
	totalTasks     int64
	completedTasks int64
	panics         int64
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithPanicHandler receives panics escaping a task. Without it the panic is
// counted and swallowed so the worker survives.
func WithPanicHandler(fn func(v any)) ExecutorOption {
	return func(e *Executor) { e.onPanic = fn }
}

// WithBacklog lets up to n tasks wait for a busy worker instead of being
// refused.
func WithBacklog(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.backlog = n
		}
	}
}

// NewExecutor creates an Executor growing up to maxWorkers goroutines.
// If maxWorkers <= 0, defaults to 64 per CPU.
func NewExecutor(maxWorkers int, opts ...ExecutorOption) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() * 64
	}
	e := &Executor{
		tasks: queue.New(),
		max:   maxWorkers,
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit hands task to an idle or new worker, or queues it within the
// backlog. It returns ErrExecutorClosed after Close and ErrExecutorSaturated
// when the task would have to wait beyond the backlog.
func (e *Executor) Submit(task func()) error {
	if task == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	// every queued task takes one of the max-running free slots
	if e.tasks.Length() >= e.max-e.running+e.backlog {
		return ErrExecutorSaturated
	}
	atomic.AddInt64(&e.totalTasks, 1)
	e.tasks.Add(task)
	switch {
	case e.idle > 0:
		// the woken worker is no longer idle
		e.idle--
		e.cond.Signal()
	case e.workers < e.max:
		e.workers++
		e.wg.Add(1)
		go e.work()
	}
	return nil
}

// NumWorkers returns the number of started workers.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workers
}

// Close stops accepting tasks, lets queued ones finish and waits for the
// workers to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	e.mu.Lock()
	pending := int64(e.tasks.Length())
	workers := int64(e.workers)
	running := int64(e.running)
	e.mu.Unlock()
	return map[string]int64{
		"total_tasks":     atomic.LoadInt64(&e.totalTasks),
		"completed_tasks": atomic.LoadInt64(&e.completedTasks),
		"pending_tasks":   pending,
		"panics":          atomic.LoadInt64(&e.panics),
		"num_workers":     workers,
		"running_tasks":   running,
	}
}

// work is the main loop of a worker.
func (e *Executor) work() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.tasks.Length() == 0 && !e.closed {
			e.idle++
			e.cond.Wait()
		}
		if e.tasks.Length() == 0 {
			e.mu.Unlock()
			return
		}
		task := e.tasks.Remove().(func())
		e.running++
		e.mu.Unlock()
		e.execute(task)
		e.mu.Lock()
		e.running--
		e.mu.Unlock()
	}
}

// execute runs the task and updates statistics, recovering from panics.
func (e *Executor) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&e.panics, 1)
			if e.onPanic != nil {
				e.onPanic(r)
			}
		}
		atomic.AddInt64(&e.completedTasks, 1)
	}()
	task()
}
