package dispatch

import (
	"context"
	"fmt"
)

// Awaitable is a result that is not available yet. The driver awaits it
// and then handles the settled value as if the endpoint had returned it.
type Awaitable interface {
	Await(ctx context.Context) (interface{}, error)
}

// Future is an Awaitable backed by a goroutine.
type Future struct {
	done  chan struct{}
	value interface{}
	err   error
}

var _ Awaitable = (*Future)(nil)

// Async runs fn on its own goroutine and returns a Future for its result.
// A panic in fn settles the Future with an error.
func Async(fn func() (interface{}, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("async endpoint panicked: %v", r)
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

// Resolved returns a Future already settled with value.
func Resolved(value interface{}) *Future {
	f := &Future{done: make(chan struct{}), value: value}
	close(f.done)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected(err error) *Future {
	f := &Future{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Await blocks until the Future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
