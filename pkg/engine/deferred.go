package engine

import "context"

// Deferred is the engine's async result: a single-settle promise that the
// caller waits on where lifecycle ordering requires a synchronous outcome.
type Deferred[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// NewDeferred creates an unsettled Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Settled returns a Deferred that is already resolved. Used by engine
// implementations that complete an operation inline.
func Settled[T any](val T, err error) *Deferred[T] {
	d := NewDeferred[T]()
	d.Settle(val, err)
	return d
}

// Settle resolves the Deferred. Must be called exactly once.
func (d *Deferred[T]) Settle(val T, err error) {
	d.val = val
	d.err = err
	close(d.done)
}

// Wait blocks until the Deferred settles or the context is cancelled.
func (d *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.val, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
