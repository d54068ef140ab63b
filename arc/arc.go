// Package arc holds the connection context shared by every DAO entity: the
// subgraph indexer, the Ethereum ledger, the transaction signer, the contract
// registry and the transaction dispatcher.
package arc

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/registry"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const defaultPollInterval = 2 * time.Second

// ErrNotFound is wrapped by errors reporting that an identifier resolves to no
// indexed or on-chain record.
var ErrNotFound = errors.New("not found")

// Indexer executes subgraph queries.
type Indexer interface {
	// Query executes req once and returns the response's data object.
	Query(ctx context.Context, req query.Request) ([]byte, error)
	// Watch pushes the data object to onData every time it changes, until ctx
	// is done or onData returns an error.
	Watch(ctx context.Context, req query.Request, onData func(data []byte) error) error
}

// Ledger is the read side of an Ethereum node.
type Ledger interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Transactor signs and submits contract calls on behalf of an account.
type Transactor interface {
	Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error)
	From() common.Address
}

// ContractRegistry resolves contract metadata.
type ContractRegistry interface {
	GetContractInfo(address string) (registry.ContractInfo, error)
	Address(name string) (common.Address, error)
}

// Config holds the collaborators of a Context.
type Config struct {
	Indexer    Indexer
	Ledger     Ledger
	Transactor Transactor
	Contracts  ContractRegistry
	Dispatcher *operation.Dispatcher
	// PollInterval paces ledger-backed live values such as balances.
	PollInterval time.Duration
	Logger       *slog.Logger
}

func (c *Config) validate() error {
	if c.Indexer == nil {
		return errors.New("config: Indexer is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Contracts == nil {
		return errors.New("config: Contracts is required")
	}
	if c.Dispatcher == nil {
		return errors.New("config: Dispatcher is required")
	}
	return nil
}

// Context is the connection context entities are bound to. It is safe for
// concurrent use.
type Context struct {
	indexer      Indexer
	ledger       Ledger
	transactor   Transactor
	contracts    ContractRegistry
	dispatcher   *operation.Dispatcher
	pollInterval time.Duration
	logger       *slog.Logger
}

// New validates cfg and creates a Context. A nil Transactor yields a read-only
// context whose transactions fail with ErrReadOnly.
func New(cfg Config) (*Context, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Context{
		indexer:      cfg.Indexer,
		ledger:       cfg.Ledger,
		transactor:   cfg.Transactor,
		contracts:    cfg.Contracts,
		dispatcher:   cfg.Dispatcher,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}, nil
}

func (c *Context) Indexer() Indexer            { return c.indexer }
func (c *Context) Ledger() Ledger              { return c.ledger }
func (c *Context) Logger() *slog.Logger        { return c.logger }
func (c *Context) PollInterval() time.Duration { return c.pollInterval }

// GetContractInfo looks up the registry entry for address.
func (c *Context) GetContractInfo(address string) (registry.ContractInfo, error) {
	return c.contracts.GetContractInfo(address)
}

// ContractAddress returns the address of a named contract.
func (c *Context) ContractAddress(name string) (common.Address, error) {
	return c.contracts.Address(name)
}

// DefaultAccount is the account transactions are sent from, or the zero
// address for a read-only context.
func (c *Context) DefaultAccount() common.Address {
	if c.transactor == nil {
		return common.Address{}
	}
	return c.transactor.From()
}

// NormalizeID lowercases an entity identifier.
func NormalizeID(id string) string {
	return strings.ToLower(id)
}
