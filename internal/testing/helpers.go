// Package testing provides test helpers for prodstats: synthetic product
// datasets and goroutine-safe error collection.
//
// Using t.Fatal() or t.FailNow() in goroutines causes undefined behavior because
// these methods call runtime.Goexit() which only terminates the current goroutine,
// not the test goroutine.
package testing

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestHelper collects errors from goroutines and reports them on Wait.
//
//	h := NewTestHelper(t)
//	for i := 0; i < n; i++ {
//	    h.Add(1)
//	    go func(id int) {
//	        defer h.Done()
//	        if err := ctrl.EnsureReady(ctx); err != nil {
//	            h.Errorf("caller %d: %v", id, err)
//	        }
//	    }(i)
//	}
//	h.Wait()
type TestHelper struct {
	t      testing.TB
	wg     sync.WaitGroup
	errors chan error

	// dropped counts errors that did not fit in the buffer.
	dropped atomic.Int64
}

// NewTestHelper creates a new test helper.
func NewTestHelper(t testing.TB) *TestHelper {
	return &TestHelper{
		t:      t,
		errors: make(chan error, 100),
	}
}

// Add increments the goroutine counter.
func (h *TestHelper) Add(delta int) {
	h.wg.Add(delta)
}

// Done decrements the goroutine counter.
func (h *TestHelper) Done() {
	h.wg.Done()
}

// Errorf records a test error from a goroutine.
// This is safe to call from any goroutine.
func (h *TestHelper) Errorf(format string, args ...interface{}) {
	h.Error(fmt.Errorf(format, args...))
}

// Error records a test error from a goroutine.
func (h *TestHelper) Error(err error) {
	if err == nil {
		return
	}
	select {
	case h.errors <- err:
	default:
		h.dropped.Add(1)
	}
}

// Wait waits for all goroutines and reports any errors.
func (h *TestHelper) Wait() {
	h.wg.Wait()
	close(h.errors)

	var failed bool
	for err := range h.errors {
		h.t.Errorf("goroutine error: %v", err)
		failed = true
	}
	if n := h.dropped.Load(); n > 0 {
		h.t.Errorf("%d further goroutine errors not shown", n)
		failed = true
	}

	if failed {
		h.t.FailNow()
	}
}

// Eventually polls condition until it holds or timeout elapses.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
