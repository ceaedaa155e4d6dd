// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package concurrency provides the bounded worker pool that runs event loop
// callbacks off the loop goroutine.
package concurrency
