package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/defistate/dao-state-client-go/query"
	"github.com/gorilla/websocket"
)

const (
	// SubProtocol is the websocket sub-protocol spoken by the subgraph node.
	SubProtocol = "graphql-ws"
	// subscriptionID is the id of the single operation started per connection.
	subscriptionID = "1"
)

// Message types of the graphql-ws protocol.
const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionTerminate = "connection_terminate"
	msgKeepAlive           = "ka"
	msgStart               = "start"
	msgStop                = "stop"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
)

// wsMessage is the envelope exchanged with the server.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// watchSubscription runs a live query over a single websocket connection.
// A failed dial or a dropped connection ends the watch with an error.
func (c *Client) watchSubscription(ctx context.Context, req query.Request, onData func([]byte) error) error {
	c.logger.Debug("Connecting to subscription endpoint", "url", c.wsURL)
	dialer := websocket.Dialer{
		Subprotocols:     []string{SubProtocol},
		HandshakeTimeout: defaultHTTPTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("Failed to connect to subscription endpoint", "error", err)
		return fmt.Errorf("dial subscription endpoint: %w", err)
	}

	err = c.subscribeAndProcess(ctx, conn, req, onData)
	if ctx.Err() != nil {
		c.logger.Debug("Subscription context canceled, shutting down.")
		return ctx.Err()
	}
	return err
}

// subscribeAndProcess runs one connection: handshake, start, then forwards
// data messages until the connection drops or ctx is done.
func (c *Client) subscribeAndProcess(ctx context.Context, conn *websocket.Conn, req query.Request, onData func([]byte) error) error {
	defer conn.Close()

	// gorilla connections support a single concurrent writer
	var writeMu sync.Mutex
	write := func(msg wsMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	// unblock ReadJSON when the caller goes away
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = write(wsMessage{ID: subscriptionID, Type: msgStop})
			_ = write(wsMessage{Type: msgConnectionTerminate})
			conn.Close()
		case <-stop:
		}
	}()

	if err := write(wsMessage{Type: msgConnectionInit}); err != nil {
		return fmt.Errorf("connection init: %w", err)
	}

	payload, err := json.Marshal(graphQLRequest{Query: subscriptionQuery(req.Query)})
	if err != nil {
		return err
	}

	acked := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		switch msg.Type {
		case msgConnectionAck:
			if acked {
				continue
			}
			acked = true
			if err := write(wsMessage{ID: subscriptionID, Type: msgStart, Payload: payload}); err != nil {
				return fmt.Errorf("start subscription: %w", err)
			}
			c.logger.Debug("Successfully subscribed. Waiting for data...")
		case msgKeepAlive:
		case msgData:
			start := time.Now()
			data, err := decodeResponse(msg.Payload)
			c.observe("subscription", start, err)
			if err != nil {
				return err
			}
			if err := onData(data); err != nil {
				return err
			}
		case msgError, msgConnectionError:
			return fmt.Errorf("%w: %s", ErrGraphQL, string(msg.Payload))
		case msgComplete:
			return errors.New("server completed the subscription")
		default:
			c.logger.Warn("Received unknown message type", "type", msg.Type)
		}
	}
}

// subscriptionQuery turns an anonymous query into a subscription operation.
func subscriptionQuery(q string) string {
	trimmed := strings.TrimSpace(q)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		return "subscription " + trimmed
	case strings.HasPrefix(trimmed, "query"):
		return "subscription" + strings.TrimPrefix(trimmed, "query")
	default:
		return trimmed
	}
}
