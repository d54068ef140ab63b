package client

import (
	"context"
	"time"

	"github.com/defistate/dao-state-client-go/query"
)

// watchPoll executes req every poll interval and hands each result to onData.
// The first request is sent immediately unless delayed is set. Any failure
// ends the watch.
func (c *Client) watchPoll(ctx context.Context, req query.Request, delayed bool, onData func([]byte) error) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	if delayed {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		start := time.Now()
		data, err := c.post(ctx, req.Query)
		c.observe("poll", start, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warn("Indexer poll failed", "error", err)
			return err
		}
		if err := onData(data); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
