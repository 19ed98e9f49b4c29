// Package api
// Author: momentics
//
// Executor contract used to run streaming consumers off the frame delivery
// goroutine.

package api

// Executor schedules tasks for asynchronous execution.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func()) error

// Submit calls f(task).
func (f ExecutorFunc) Submit(task func()) error {
	return f(task)
}

// GoExecutor runs every task on its own goroutine.
var GoExecutor Executor = ExecutorFunc(func(task func()) error {
	go task()
	return nil
})
