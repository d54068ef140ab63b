// Package arctest provides in-memory stand-ins for the collaborators of an
// arc.Context.
package arctest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/registry"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const pollInterval = time.Millisecond

var rootField = regexp.MustCompile(`^\s*\{\s*([A-Za-z_][A-Za-z0-9_]*)`)

// Indexer answers queries from canned results keyed by the query's root
// field.
type Indexer struct {
	mu      sync.Mutex
	results map[string]string
	queries []string
}

func NewIndexer() *Indexer {
	return &Indexer{results: make(map[string]string)}
}

// Set replaces the JSON value returned for the root field.
func (i *Indexer) Set(field, value string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.results[field] = value
}

// Queries returns every executed query, oldest first.
func (i *Indexer) Queries() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.queries...)
}

// Calls returns the number of executed queries.
func (i *Indexer) Calls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queries)
}

func (i *Indexer) Query(_ context.Context, req query.Request) ([]byte, error) {
	m := rootField.FindStringSubmatch(req.Query)
	if m == nil {
		return nil, fmt.Errorf("arctest: no root field in %q", req.Query)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.queries = append(i.queries, req.Query)
	value, ok := i.results[m[1]]
	if !ok {
		value = "null"
	}
	return []byte(fmt.Sprintf(`{"%s":%s}`, m[1], value)), nil
}

// Watch polls Query every millisecond, forwarding changed results.
func (i *Indexer) Watch(ctx context.Context, req query.Request, onData func([]byte) error) error {
	var last []byte
	for {
		data, err := i.Query(ctx, req)
		if err != nil {
			return err
		}
		if !bytes.Equal(data, last) {
			last = data
			if err := onData(data); err != nil {
				return err
			}
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Ledger is an in-memory chain: a block counter, receipts and a contract call
// handler.
type Ledger struct {
	mu       sync.Mutex
	head     uint64
	receipts map[common.Hash]*types.Receipt
	calls    []ethereum.CallMsg
	// CallFn answers eth_call. Nil means every call fails.
	CallFn func(msg ethereum.CallMsg) ([]byte, error)
}

func NewLedger() *Ledger {
	return &Ledger{receipts: make(map[common.Hash]*types.Receipt)}
}

func (l *Ledger) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	l.mu.Lock()
	l.calls = append(l.calls, msg)
	fn := l.CallFn
	l.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("arctest: no contract at %v", msg.To)
	}
	return fn(msg)
}

func (l *Ledger) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (l *Ledger) BlockNumber(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head, nil
}

// Mine records a receipt for tx in a new block.
func (l *Ledger) Mine(tx *types.Transaction, status uint64, logs []*types.Log) *types.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head++
	r := &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(l.head),
		Logs:        logs,
	}
	l.receipts[tx.Hash()] = r
	return r
}

// AdvanceBlock mines an empty block.
func (l *Ledger) AdvanceBlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head++
}

// ContractCalls returns the number of eth_calls made.
func (l *Ledger) ContractCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// SentCall is a transaction submitted through a Transactor.
type SentCall struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	Tx    *types.Transaction
}

// Transactor records submitted calls and mines them on a Ledger.
type Transactor struct {
	mu     sync.Mutex
	ledger *Ledger
	from   common.Address
	sent   []SentCall
	// Status of mined receipts; defaults to success.
	Status uint64
	// Logs produces the receipt logs of a call.
	Logs func(call SentCall) []*types.Log
	// OnMined runs after a call has been mined.
	OnMined func(call SentCall)
}

func NewTransactor(ledger *Ledger, from common.Address) *Transactor {
	return &Transactor{ledger: ledger, from: from, Status: types.ReceiptStatusSuccessful}
}

func (t *Transactor) Transact(_ context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	t.mu.Lock()
	nonce := uint64(len(t.sent))
	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, To: &to, Data: data, Value: value, Gas: 1_000_000, GasPrice: big.NewInt(1)})
	call := SentCall{To: to, Data: data, Value: value, Tx: tx}
	t.sent = append(t.sent, call)
	status, logsFn, onMined := t.Status, t.Logs, t.OnMined
	t.mu.Unlock()

	var logs []*types.Log
	if logsFn != nil {
		logs = logsFn(call)
	}
	t.ledger.Mine(tx, status, logs)
	if onMined != nil {
		onMined(call)
	}
	return tx, nil
}

func (t *Transactor) From() common.Address { return t.from }

// Sent returns the submitted calls.
func (t *Transactor) Sent() []SentCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentCall(nil), t.sent...)
}

// Env bundles fakes and the context built on them.
type Env struct {
	Indexer    *Indexer
	Ledger     *Ledger
	Transactor *Transactor
	Context    *arc.Context
}

// Account is the default account of an Env.
var Account = common.HexToAddress("0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1")

// NewEnv builds a context over fresh fakes and the given contracts.
func NewEnv(t testing.TB, contracts []registry.ContractInfo) *Env {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	ledger := NewLedger()
	transactor := NewTransactor(ledger, Account)
	indexer := NewIndexer()

	dispatcher, err := operation.NewDispatcher(operation.Config{
		Ledger:       ledger,
		Logger:       logger,
		PollInterval: pollInterval,
	})
	require.NoError(t, err)

	c, err := arc.New(arc.Config{
		Indexer:      indexer,
		Ledger:       ledger,
		Transactor:   transactor,
		Contracts:    registry.New(contracts),
		Dispatcher:   dispatcher,
		PollInterval: pollInterval,
		Logger:       logger,
	})
	require.NoError(t, err)

	return &Env{Indexer: indexer, Ledger: ledger, Transactor: transactor, Context: c}
}
