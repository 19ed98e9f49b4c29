// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded goroutine executor used to run streaming message consumers off
// the frame delivery goroutine.
package concurrency
