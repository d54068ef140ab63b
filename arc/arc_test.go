package arc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/arc/arctest"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/registry"
	"github.com/defistate/dao-state-client-go/streams/graphql/client"
	"github.com/defistate/dao-state-client-go/streams/live"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID string `json:"id"`
}

func TestNew_Validation(t *testing.T) {
	_, err := arc.New(arc.Config{})
	assert.EqualError(t, err, "config: Indexer is required")
}

func TestObservableList(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	env.Indexer.Set("things", `[{"id":"a"},{"id":"b"},{"id":"c"}]`)

	q := arc.ObservableList(env.Context, query.Request{Query: `{ things { id } }`}, "things",
		func(_ context.Context, raw []byte) (item, bool, error) {
			var it item
			if err := json.Unmarshal(raw, &it); err != nil {
				return item{}, false, err
			}
			return it, it.ID == "b", nil
		})

	ch := make(chan []item)
	sub := q.Subscribe(ch)
	defer sub.Unsubscribe()
	assert.Equal(t, []item{{ID: "a"}, {ID: "c"}}, <-ch)

	env.Indexer.Set("things", `[{"id":"d"}]`)
	assert.Equal(t, []item{{ID: "d"}}, <-ch)
}

func TestObservableList_UnsubscribeStopsQueries(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	env.Indexer.Set("things", `[]`)

	q := arc.ObservableList(env.Context, query.Request{Query: `{ things { id } }`}, "things",
		func(context.Context, []byte) (item, bool, error) { return item{}, false, nil })

	sub := q.Subscribe(make(chan []item, 1))
	require.Eventually(t, func() bool { return env.Indexer.Calls() >= 3 }, time.Second, time.Millisecond)
	sub.Unsubscribe()

	calls := env.Indexer.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, env.Indexer.Calls())
}

func TestObservableList_IndexerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	indexer, err := client.NewClient(client.Config{
		URL:          srv.URL,
		PollInterval: time.Millisecond,
		Logger:       slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	ledger := arctest.NewLedger()
	dispatcher, err := operation.NewDispatcher(operation.Config{Ledger: ledger, Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	c, err := arc.New(arc.Config{
		Indexer:    indexer,
		Ledger:     ledger,
		Contracts:  registry.New(nil),
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	q := arc.ObservableList(c, query.Request{Query: `{ things { id } }`}, "things",
		func(context.Context, []byte) (item, bool, error) { return item{}, false, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = live.First(ctx, q)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorContains(t, err, "post query")
}

func TestObservableObject(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	notFound := func(_ context.Context, raw []byte) (item, error) {
		if raw == nil {
			return item{}, fmt.Errorf("thing: %w", arc.ErrNotFound)
		}
		var it item
		return it, json.Unmarshal(raw, &it)
	}
	q := arc.ObservableObject(env.Context, query.Request{Query: `{ thing (id: "x") { id } }`}, "thing", notFound)

	_, err := live.First(context.Background(), q)
	assert.ErrorIs(t, err, arc.ErrNotFound)

	env.Indexer.Set("thing", `{"id":"x"}`)
	got, err := live.First(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, item{ID: "x"}, got)
}

func TestSendTransaction(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	op := arc.SendTransaction(env.Context, env.Context.Call(to, []byte{0x01}, nil),
		func(r *types.Receipt) (uint64, error) { return r.BlockNumber.Uint64(), nil })
	block, err := op.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block)

	sent := env.Transactor.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, to, sent[0].To)
	assert.Equal(t, arctest.Account, env.Context.DefaultAccount())
}

func TestCall_ReadOnly(t *testing.T) {
	env := arctest.NewEnv(t, nil)
	dispatcher, err := operation.NewDispatcher(operation.Config{Ledger: env.Ledger, Logger: env.Context.Logger()})
	require.NoError(t, err)
	readOnly, err := arc.New(arc.Config{
		Indexer:    env.Indexer,
		Ledger:     env.Ledger,
		Contracts:  registry.New(nil),
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	_, err = arc.SendTransaction(readOnly, readOnly.Call(common.Address{}, nil, nil),
		func(*types.Receipt) (int, error) { return 0, nil }).Send(context.Background())
	assert.True(t, errors.Is(err, arc.ErrReadOnly))
	assert.Equal(t, common.Address{}, readOnly.DefaultAccount())
}

func TestNewKeyedTransactor_Validation(t *testing.T) {
	_, err := arc.NewKeyedTransactor(nil, nil)
	assert.Error(t, err)
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "0xfake", arc.NormalizeID("0xFake"))
}
