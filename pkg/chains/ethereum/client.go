// Package ethereum assembles an arc.Context for an Ethereum chain: a JSON-RPC
// ledger, a subgraph indexer and, when a key is configured, a signer.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/defistate/dao-state-client-go/arc"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/registry"
	"github.com/defistate/dao-state-client-go/streams/graphql/client"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds everything needed to connect to a chain.
type Config struct {
	ChainID      *big.Int
	LedgerURL    string
	IndexerURL   string
	IndexerWSURL string
	// ContractsFile is the migration file of the deployed contracts.
	ContractsFile string
	// PrivateKey is hex encoded. Without it the client is read-only.
	PrivateKey    string
	PollInterval  time.Duration
	Confirmations uint64
	Logger        *slog.Logger
	Registry      prometheus.Registerer
}

func (c *Config) validate() error {
	if c.ChainID == nil {
		return errors.New("config: ChainID is required")
	}
	if c.LedgerURL == "" {
		return errors.New("config: LedgerURL is required")
	}
	if c.IndexerURL == "" {
		return errors.New("config: IndexerURL is required")
	}
	if c.ContractsFile == "" {
		return errors.New("config: ContractsFile is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Client is a connected arc.Context. Close releases the ledger connection.
type Client struct {
	*arc.Context
	ledger *ethclient.Client
}

// NewClient dials the ledger and builds the context around it.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	contracts, err := registry.Load(cfg.ContractsFile)
	if err != nil {
		return nil, err
	}

	ledger, err := ethclient.DialContext(ctx, cfg.LedgerURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger: %w", err)
	}
	chainID, err := ledger.ChainID(ctx)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("ledger chain id: %w", err)
	}
	if chainID.Cmp(cfg.ChainID) != 0 {
		ledger.Close()
		return nil, fmt.Errorf("ledger is on chain %s, configured for %s", chainID, cfg.ChainID)
	}

	indexer, err := client.NewClient(client.Config{
		URL:          cfg.IndexerURL,
		WSURL:        cfg.IndexerWSURL,
		Logger:       cfg.Logger.With("component", "indexer-client"),
		PollInterval: cfg.PollInterval,
		Metrics:      client.NewMetrics(cfg.Registry),
	})
	if err != nil {
		ledger.Close()
		return nil, err
	}

	dispatcher, err := operation.NewDispatcher(operation.Config{
		Ledger:        ledger,
		Logger:        cfg.Logger.With("component", "dispatcher"),
		Confirmations: cfg.Confirmations,
		PollInterval:  cfg.PollInterval,
		Metrics:       operation.NewMetrics(cfg.Registry),
	})
	if err != nil {
		ledger.Close()
		return nil, err
	}

	arcCfg := arc.Config{
		Indexer:      indexer,
		Ledger:       ledger,
		Contracts:    contracts,
		Dispatcher:   dispatcher,
		PollInterval: cfg.PollInterval,
		Logger:       cfg.Logger,
	}
	if cfg.PrivateKey != "" {
		transactor, err := newTransactor(ledger, cfg.PrivateKey, cfg.ChainID)
		if err != nil {
			ledger.Close()
			return nil, err
		}
		arcCfg.Transactor = transactor
		cfg.Logger.Info("Signing transactions", "account", transactor.From().Hex())
	}

	c, err := arc.New(arcCfg)
	if err != nil {
		ledger.Close()
		return nil, err
	}
	return &Client{Context: c, ledger: ledger}, nil
}

func (c *Client) Close() {
	c.ledger.Close()
}

func newTransactor(backend bind.ContractBackend, privateKey string, chainID *big.Int) (*arc.KeyedTransactor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	return arc.NewKeyedTransactor(backend, opts)
}
