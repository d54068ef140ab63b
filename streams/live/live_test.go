package live

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ticking emits an increasing counter every interval and counts how many
// times it ran.
func ticking(runs *atomic.Int64, interval time.Duration) *Query[int] {
	return NewQuery(func(ctx context.Context, emit EmitFunc[int]) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			runs.Add(1)
			if !emit(i) {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("EachSubscriptionRunsTheProducer", func(t *testing.T) {
		var runs atomic.Int64
		q := ticking(&runs, time.Hour)

		for i := 0; i < 2; i++ {
			v, err := First(context.Background(), q)
			require.NoError(t, err)
			assert.Equal(t, 0, v)
		}
		assert.Equal(t, int64(2), runs.Load())
	})

	t.Run("UnsubscribeStopsProducer", func(t *testing.T) {
		var runs atomic.Int64
		q := ticking(&runs, time.Millisecond)

		ch := make(chan int)
		sub := q.Subscribe(ch)
		<-ch
		<-ch
		<-ch
		sub.Unsubscribe()

		stopped := runs.Load()
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, stopped, runs.Load(), "producer must not run after unsubscribe")

		_, open := <-sub.Err()
		assert.False(t, open)
	})

	t.Run("ProducerErrorIsReported", func(t *testing.T) {
		boom := errors.New("boom")
		sub := Fail[int](boom).Subscribe(make(chan int))
		defer sub.Unsubscribe()

		select {
		case err := <-sub.Err():
			assert.ErrorIs(t, err, boom)
		case <-time.After(time.Second):
			t.Fatal("expected an error")
		}
	})
}

func TestFirst(t *testing.T) {
	t.Run("Static", func(t *testing.T) {
		v, err := First(context.Background(), Static("dao"))
		require.NoError(t, err)
		assert.Equal(t, "dao", v)
	})

	t.Run("ClosedWithoutValue", func(t *testing.T) {
		q := NewQuery(func(ctx context.Context, emit EmitFunc[int]) error { return nil })
		_, err := First(context.Background(), q)
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		q := NewQuery(func(ctx context.Context, emit EmitFunc[int]) error {
			<-ctx.Done()
			return ctx.Err()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := First(ctx, q)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMap(t *testing.T) {
	var runs atomic.Int64
	src := ticking(&runs, time.Millisecond)

	t.Run("SkipsValues", func(t *testing.T) {
		odd := Map(src, func(ctx context.Context, v int) (string, bool, error) {
			if v%2 == 0 {
				return "", true, nil
			}
			return "odd", false, nil
		})
		ch := make(chan string)
		sub := odd.Subscribe(ch)
		defer sub.Unsubscribe()
		assert.Equal(t, "odd", <-ch)
	})

	t.Run("ErrorTerminates", func(t *testing.T) {
		boom := errors.New("boom")
		failing := Map(src, func(ctx context.Context, v int) (int, bool, error) {
			return 0, false, boom
		})
		_, err := First(context.Background(), failing)
		assert.ErrorIs(t, err, boom)
	})
}
