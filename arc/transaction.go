package arc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/dao-state-client-go/operation"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReadOnly is returned when a transaction is sent through a context
// without a Transactor.
var ErrReadOnly = errors.New("context has no transactor")

// SendTransaction wraps a lazily built transaction into an operation.
func SendTransaction[T any](c *Context, build operation.Builder, project operation.Projector[T]) *operation.Operation[T] {
	return operation.New(c.dispatcher, build, project)
}

// Call returns a Builder that sends data to the contract at to.
func (c *Context) Call(to common.Address, data []byte, value *big.Int) operation.Builder {
	return func(ctx context.Context) (*types.Transaction, error) {
		if c.transactor == nil {
			return nil, ErrReadOnly
		}
		tx, err := c.transactor.Transact(ctx, to, data, value)
		if err != nil {
			return nil, err
		}
		c.logger.Info("Submitted transaction", "to", to, "tx_hash", tx.Hash())
		return tx, nil
	}
}

// KeyedTransactor signs with bind.TransactOpts and submits through a contract
// backend.
type KeyedTransactor struct {
	backend bind.ContractBackend
	opts    bind.TransactOpts
}

// NewKeyedTransactor creates a Transactor from a backend and signing options.
func NewKeyedTransactor(backend bind.ContractBackend, opts *bind.TransactOpts) (*KeyedTransactor, error) {
	if backend == nil {
		return nil, errors.New("transactor: backend is required")
	}
	if opts == nil || opts.Signer == nil {
		return nil, errors.New("transactor: signing options are required")
	}
	return &KeyedTransactor{backend: backend, opts: *opts}, nil
}

// Transact signs data as a call to the contract at to and broadcasts it.
func (t *KeyedTransactor) Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	opts := t.opts
	opts.Context = ctx
	opts.Value = value
	contract := bind.NewBoundContract(to, abi.ABI{}, t.backend, t.backend, t.backend)
	tx, err := contract.RawTransact(&opts, data)
	if err != nil {
		return nil, fmt.Errorf("transact %s: %w", to.Hex(), err)
	}
	return tx, nil
}

func (t *KeyedTransactor) From() common.Address {
	return t.opts.From
}
