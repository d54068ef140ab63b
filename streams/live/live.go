// Package live implements push-based query streams.
//
// A Query is a recipe, not a running computation: every call to Subscribe
// starts a fresh producer and Unsubscribe stops it, waiting until it has
// returned. Producers receive a context that is cancelled on unsubscribe and
// must pass it to any nested subscription so nothing outlives the caller.
package live

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/event"
)

// ErrClosed is returned by First when the stream finishes without a value.
var ErrClosed = errors.New("live: stream closed without a value")

// EmitFunc delivers a value to the subscriber. It returns false once the
// subscriber has gone away, after which the producer should return.
type EmitFunc[T any] func(T) bool

// Producer pushes values until ctx is done or it fails.
type Producer[T any] func(ctx context.Context, emit EmitFunc[T]) error

// Query is a live, re-emitting stream of T.
type Query[T any] struct {
	produce Producer[T]
}

// NewQuery creates a Query backed by the given producer.
func NewQuery[T any](p Producer[T]) *Query[T] {
	return &Query[T]{produce: p}
}

// Subscribe starts the producer and delivers values on ch. A producer error is
// reported on the subscription's Err channel; the channel is closed without
// an error when the producer finishes normally or after Unsubscribe.
func (q *Query[T]) Subscribe(ch chan<- T) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			select {
			case <-quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		err := q.produce(ctx, func(v T) bool {
			select {
			case ch <- v:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// First subscribes, waits for the first value and unsubscribes.
func First[T any](ctx context.Context, q *Query[T]) (T, error) {
	var zero T
	ch := make(chan T, 1)
	sub := q.Subscribe(ch)
	defer sub.Unsubscribe()

	select {
	case v := <-ch:
		return v, nil
	case err := <-sub.Err():
		if err == nil {
			// the producer may have emitted right before returning
			select {
			case v := <-ch:
				return v, nil
			default:
			}
			err = ErrClosed
		}
		return zero, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Map derives a stream by applying fn to each value of src. Values for which
// fn returns skip are dropped; an error from fn terminates the stream.
func Map[S, D any](src *Query[S], fn func(ctx context.Context, v S) (d D, skip bool, err error)) *Query[D] {
	return NewQuery(func(ctx context.Context, emit EmitFunc[D]) error {
		var mapErr error
		err := src.produce(ctx, func(v S) bool {
			d, skip, err := fn(ctx, v)
			if err != nil {
				mapErr = err
				return false
			}
			if skip {
				return true
			}
			return emit(d)
		})
		if mapErr != nil {
			return mapErr
		}
		return err
	})
}

// Static returns a Query that emits v once and finishes.
func Static[T any](v T) *Query[T] {
	return NewQuery(func(ctx context.Context, emit EmitFunc[T]) error {
		emit(v)
		return nil
	})
}

// Fail returns a Query that fails immediately with err.
func Fail[T any](err error) *Query[T] {
	return NewQuery(func(ctx context.Context, emit EmitFunc[T]) error {
		return err
	})
}
