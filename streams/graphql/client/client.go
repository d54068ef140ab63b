// Package client executes queries against a DAO subgraph. One-shot queries
// go over HTTP; live queries either poll over HTTP or ride a GraphQL
// subscription over WebSocket when a WebSocket URL is configured.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/defistate/dao-state-client-go/query"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/tidwall/gjson"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultHTTPTimeout  = 30 * time.Second
)

var (
	// ErrMalformedQuery is returned before any I/O when a query does not parse.
	ErrMalformedQuery = errors.New("malformed graphql query")
	// ErrGraphQL is returned when the indexer answers with an errors array.
	ErrGraphQL = errors.New("graphql error")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL string
	// WSURL enables GraphQL subscriptions for live queries. When empty, live
	// queries poll URL every PollInterval.
	WSURL        string
	Logger       Logger
	PollInterval time.Duration
	HTTPClient   *http.Client
	// Metrics is optional.
	Metrics *Metrics
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.PollInterval < 0 {
		return errors.New("config: PollInterval must not be negative")
	}
	return nil
}

// Client talks to a single subgraph endpoint.
type Client struct {
	url          string
	wsURL        string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       Logger
	metrics      *Metrics

	cacheMu sync.Mutex
	cache   map[string][]byte
}

type graphQLRequest struct {
	Query string `json:"query"`
}

// NewClient creates a new client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		url:          cfg.URL,
		wsURL:        cfg.WSURL,
		pollInterval: cfg.PollInterval,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		cache:        make(map[string][]byte),
	}, nil
}

// Query executes req once and returns the response's data object.
func (c *Client) Query(ctx context.Context, req query.Request) ([]byte, error) {
	if err := validateQuery(req.Query); err != nil {
		return nil, err
	}

	if req.FetchPolicy == query.FetchCacheFirst {
		if data, ok := c.cached(req.Query); ok {
			return data, nil
		}
	}

	start := time.Now()
	data, err := c.post(ctx, req.Query)
	c.observe("query", start, err)
	if err != nil {
		return nil, err
	}
	c.store(req.Query, data)
	return data, nil
}

// Watch pushes the data object of req to onData every time it changes, until
// ctx is done, onData returns an error or the indexer fails. Failures end the
// watch; nothing is retried.
//
// With FetchCacheFirst a cached result is delivered first and the network is
// only consulted after one poll interval, or once the subscription is up.
func (c *Client) Watch(ctx context.Context, req query.Request, onData func(data []byte) error) error {
	if err := validateQuery(req.Query); err != nil {
		return err
	}

	var last []byte
	fromCache := false
	if req.FetchPolicy == query.FetchCacheFirst {
		if data, ok := c.cached(req.Query); ok {
			if err := onData(data); err != nil {
				return err
			}
			last, fromCache = data, true
		}
	}
	forward := func(data []byte) error {
		if bytes.Equal(data, last) {
			return nil
		}
		last = data
		c.store(req.Query, data)
		return onData(data)
	}

	if c.wsURL != "" {
		return c.watchSubscription(ctx, req, forward)
	}
	return c.watchPoll(ctx, req, fromCache, forward)
}

func (c *Client) cached(q string) ([]byte, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	data, ok := c.cache[q]
	return data, ok
}

func (c *Client) store(q string, data []byte) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[q] = data
}

func (c *Client) post(ctx context.Context, q string) ([]byte, error) {
	body, err := json.Marshal(graphQLRequest{Query: q})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	rsp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post query: %w", err)
	}
	defer rsp.Body.Close()

	out, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if rsp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("indexer response code %d with body %s", rsp.StatusCode, string(out))
	}
	return decodeResponse(out)
}

// decodeResponse extracts the data object of a GraphQL response, turning an
// errors array into ErrGraphQL.
func decodeResponse(payload []byte) ([]byte, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("invalid response body: %s", string(payload))
	}
	if errs := gjson.GetBytes(payload, "errors"); errs.Exists() && len(errs.Array()) > 0 {
		var formatted []gqlerrors.FormattedError
		if err := json.Unmarshal([]byte(errs.Raw), &formatted); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrGraphQL, errs.Raw)
		}
		msgs := make([]string, 0, len(formatted))
		for _, e := range formatted {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	data := gjson.GetBytes(payload, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, fmt.Errorf("%w: response has no data", ErrGraphQL)
	}
	return []byte(data.Raw), nil
}

func validateQuery(q string) error {
	if _, err := parser.Parse(parser.ParseParams{Source: q}); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}
	return nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.queriesTotal.WithLabelValues(op, result).Inc()
	c.metrics.queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
