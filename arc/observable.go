package arc

import (
	"context"
	"errors"

	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/streams/live"
	"github.com/tidwall/gjson"
)

// errStopped ends an indexer watch once the subscriber has gone away.
var errStopped = errors.New("subscriber stopped")

// ItemMapFunc projects one raw record. Returning skip drops the record.
type ItemMapFunc[T any] func(ctx context.Context, raw []byte) (item T, skip bool, err error)

// ObjectMapFunc projects the record of a single-entity query. raw is nil when
// the indexer returned null.
type ObjectMapFunc[T any] func(ctx context.Context, raw []byte) (T, error)

// ObservableList watches req and emits field of each result, projected item by
// item through itemMap.
func ObservableList[T any](c *Context, req query.Request, field string, itemMap ItemMapFunc[T]) *live.Query[[]T] {
	return live.NewQuery(func(ctx context.Context, emit live.EmitFunc[[]T]) error {
		return watch(ctx, c, req, func(data []byte) error {
			records := gjson.GetBytes(data, field).Array()
			items := make([]T, 0, len(records))
			for _, r := range records {
				item, skip, err := itemMap(ctx, []byte(r.Raw))
				if err != nil {
					return err
				}
				if !skip {
					items = append(items, item)
				}
			}
			if !emit(items) {
				return errStopped
			}
			return nil
		})
	})
}

// ObservableObject watches req and emits field of each result projected
// through itemMap.
func ObservableObject[T any](c *Context, req query.Request, field string, itemMap ObjectMapFunc[T]) *live.Query[T] {
	return live.NewQuery(func(ctx context.Context, emit live.EmitFunc[T]) error {
		return watch(ctx, c, req, func(data []byte) error {
			var raw []byte
			if r := gjson.GetBytes(data, field); r.Exists() && r.Type != gjson.Null {
				raw = []byte(r.Raw)
			}
			item, err := itemMap(ctx, raw)
			if err != nil {
				return err
			}
			if !emit(item) {
				return errStopped
			}
			return nil
		})
	})
}

func watch(ctx context.Context, c *Context, req query.Request, onData func([]byte) error) error {
	c.logger.Debug("Watching indexer query", "query", req.Query)
	err := c.indexer.Watch(ctx, req, onData)
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}
