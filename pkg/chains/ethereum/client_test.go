package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/defistate/dao-state-client-go/protocols/scheme"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/streams/live"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		ChainID:       big.NewInt(1),
		LedgerURL:     "http://localhost:8545",
		IndexerURL:    "http://localhost:8000/subgraphs/name/daostack",
		ContractsFile: "migration.yaml",
		Logger:        slog.New(slog.DiscardHandler),
		Registry:      prometheus.NewRegistry(),
	}
	require.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"chain id", func(c *Config) { c.ChainID = nil }, "config: ChainID is required"},
		{"ledger", func(c *Config) { c.LedgerURL = "" }, "config: LedgerURL is required"},
		{"indexer", func(c *Config) { c.IndexerURL = "" }, "config: IndexerURL is required"},
		{"contracts", func(c *Config) { c.ContractsFile = "" }, "config: ContractsFile is required"},
		{"logger", func(c *Config) { c.Logger = nil }, "config: Logger is required"},
		{"registry", func(c *Config) { c.Registry = nil }, "config: Registry is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.EqualError(t, cfg.validate(), tt.want)
		})
	}
}

func TestNewClient_MissingContractsFile(t *testing.T) {
	_, err := NewClient(context.Background(), Config{
		ChainID:       big.NewInt(1),
		LedgerURL:     "http://localhost:8545",
		IndexerURL:    "http://localhost:8000",
		ContractsFile: t.TempDir() + "/missing.yaml",
		Logger:        slog.New(slog.DiscardHandler),
		Registry:      prometheus.NewRegistry(),
	})
	assert.Error(t, err)
}

// ledgerServer answers eth_chainId with chainID and fails every other call.
func ledgerServer(t *testing.T, chainID uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Method != "eth_chainId" {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"%s"}`, req.ID, hexutil.EncodeUint64(chainID))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_IndexerDown(t *testing.T) {
	ledger := ledgerServer(t, 1337)
	indexer := httptest.NewServer(http.NotFoundHandler())
	indexer.Close()

	contractsFile := filepath.Join(t.TempDir(), "migration.yaml")
	require.NoError(t, os.WriteFile(contractsFile, []byte(`{"base": {"GenesisProtocol": "0x1111111111111111111111111111111111111111"}}`), 0o600))

	c, err := NewClient(context.Background(), Config{
		ChainID:       big.NewInt(1337),
		LedgerURL:     ledger.URL,
		IndexerURL:    indexer.URL,
		ContractsFile: contractsFile,
		PollInterval:  10 * time.Millisecond,
		Logger:        slog.New(slog.DiscardHandler),
		Registry:      prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer c.Close()

	q, err := scheme.Search(c.Context, query.Options{}, query.FetchNetworkOnly)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = live.First(ctx, q)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorContains(t, err, "post query")
}

func TestNewClient_WrongChain(t *testing.T) {
	ledger := ledgerServer(t, 1)
	contractsFile := filepath.Join(t.TempDir(), "migration.yaml")
	require.NoError(t, os.WriteFile(contractsFile, []byte(`{"base": {}}`), 0o600))

	_, err := NewClient(context.Background(), Config{
		ChainID:       big.NewInt(1337),
		LedgerURL:     ledger.URL,
		IndexerURL:    "http://localhost:8000",
		ContractsFile: contractsFile,
		Logger:        slog.New(slog.DiscardHandler),
		Registry:      prometheus.NewRegistry(),
	})
	assert.EqualError(t, err, "ledger is on chain 1, configured for 1337")
}

type stubBackend struct {
	bind.ContractBackend
}

func TestNewTransactor(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	tr, err := newTransactor(stubBackend{}, hexKey, big.NewInt(1337))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), tr.From())

	_, err = newTransactor(nil, hexKey, big.NewInt(1337))
	assert.EqualError(t, err, "transactor: backend is required")

	_, err = newTransactor(nil, "not-a-key", big.NewInt(1337))
	assert.ErrorContains(t, err, "private key")
}
