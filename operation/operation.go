// Package operation submits ledger transactions and reports their progress as
// a stream of ordered stages: sent, mined, confirmed.
package operation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/dao-state-client-go/streams/live"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

const defaultPollInterval = time.Second

var (
	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("transaction reverted")
	// ErrNotConfirmed is returned by Send when the stream ends before the
	// confirmed stage.
	ErrNotConfirmed = errors.New("operation ended before confirmation")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Stage is the lifecycle position of a submitted transaction.
type Stage int

const (
	StageSent Stage = iota + 1
	StageMined
	StageConfirmed
)

func (s Stage) String() string {
	switch s {
	case StageSent:
		return "sent"
	case StageMined:
		return "mined"
	case StageConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Update is a single progress notification. Result is set from StageMined on.
type Update[T any] struct {
	Stage         Stage
	TxHash        common.Hash
	Receipt       *types.Receipt
	Confirmations uint64
	Result        T
}

// Builder signs and submits a transaction. It is called when a subscriber
// starts the operation, never before.
type Builder func(ctx context.Context) (*types.Transaction, error)

// Projector turns a mined receipt into the operation's domain result.
type Projector[T any] func(receipt *types.Receipt) (T, error)

// Ledger is the subset of an Ethereum client the dispatcher polls.
type Ledger interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config holds the configuration for the dispatcher.
type Config struct {
	Ledger Ledger
	Logger Logger
	// Confirmations is the number of blocks mined on top of the receipt's
	// block before the operation is confirmed.
	Confirmations uint64
	PollInterval  time.Duration
	// Metrics is optional.
	Metrics *Metrics
}

func (c *Config) validate() error {
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Dispatcher tracks submitted transactions until they are confirmed.
type Dispatcher struct {
	ledger        Ledger
	logger        Logger
	confirmations uint64
	pollInterval  time.Duration
	metrics       *Metrics
}

// NewDispatcher validates cfg and creates a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Dispatcher{
		ledger:        cfg.Ledger,
		logger:        cfg.Logger,
		confirmations: cfg.Confirmations,
		pollInterval:  cfg.PollInterval,
		metrics:       cfg.Metrics,
	}, nil
}

// Operation is a lazily started transaction.
type Operation[T any] struct {
	stream *live.Query[Update[T]]
}

// New creates an operation that runs build and project through d on every
// subscription.
func New[T any](d *Dispatcher, build Builder, project Projector[T]) *Operation[T] {
	return &Operation[T]{
		stream: live.NewQuery(func(ctx context.Context, emit live.EmitFunc[Update[T]]) error {
			return run(ctx, d, build, project, emit)
		}),
	}
}

// Subscribe starts the operation. Unsubscribing cancels the submission or
// the wait for its receipt. The subscription's Err channel carries any
// terminal failure.
func (op *Operation[T]) Subscribe(ch chan<- Update[T]) event.Subscription {
	return op.stream.Subscribe(ch)
}

// Send starts the operation and blocks until it is confirmed.
func (op *Operation[T]) Send(ctx context.Context) (T, error) {
	var zero T
	ch := make(chan Update[T], 3)
	sub := op.Subscribe(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case u := <-ch:
			if u.Stage == StageConfirmed {
				return u.Result, nil
			}
		case err := <-sub.Err():
			// stages emitted right before the producer returned
			for len(ch) > 0 {
				if u := <-ch; u.Stage == StageConfirmed {
					return u.Result, nil
				}
			}
			if err == nil {
				err = ErrNotConfirmed
			}
			return zero, err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func run[T any](ctx context.Context, d *Dispatcher, build Builder, project Projector[T], emit live.EmitFunc[Update[T]]) error {
	tx, err := build(ctx)
	if err != nil {
		d.observe("build", err)
		return fmt.Errorf("send transaction: %w", err)
	}
	hash := tx.Hash()
	d.observe(StageSent.String(), nil)
	d.logger.Debug("Transaction sent", "tx_hash", hash)
	if !emit(Update[T]{Stage: StageSent, TxHash: hash}) {
		return nil
	}

	receipt, err := d.waitMined(ctx, hash)
	if err != nil {
		d.observe(StageMined.String(), err)
		return err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		d.observe(StageMined.String(), ErrReverted)
		return fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}
	result, err := project(receipt)
	if err != nil {
		d.observe(StageMined.String(), err)
		return fmt.Errorf("project receipt of %s: %w", hash.Hex(), err)
	}
	d.observe(StageMined.String(), nil)
	d.logger.Debug("Transaction mined", "tx_hash", hash, "block_number", receipt.BlockNumber)
	if !emit(Update[T]{Stage: StageMined, TxHash: hash, Receipt: receipt, Result: result}) {
		return nil
	}

	confirmations, err := d.waitConfirmed(ctx, receipt)
	if err != nil {
		d.observe(StageConfirmed.String(), err)
		return err
	}
	d.observe(StageConfirmed.String(), nil)
	emit(Update[T]{
		Stage:         StageConfirmed,
		TxHash:        hash,
		Receipt:       receipt,
		Confirmations: confirmations,
		Result:        result,
	})
	return nil
}

func (d *Dispatcher) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.ledger.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt of %s: %w", hash.Hex(), err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (d *Dispatcher) waitConfirmed(ctx context.Context, receipt *types.Receipt) (uint64, error) {
	var mined uint64
	if receipt.BlockNumber != nil {
		mined = receipt.BlockNumber.Uint64()
	}
	target := mined + d.confirmations

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		head, err := d.ledger.BlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("block number: %w", err)
		}
		if head >= target {
			return head - mined, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (d *Dispatcher) observe(stage string, err error) {
	if d.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	d.metrics.transactionsTotal.WithLabelValues(stage, result).Inc()
}
