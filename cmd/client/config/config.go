package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type ClientConfig struct {
	ChainID        *big.Int      `yaml:"chain_id" env:"DAO_CHAIN_ID" validate:"required"`
	LedgerURL      string        `yaml:"ledger_url" env:"DAO_LEDGER_URL" validate:"required,url"`
	IndexerURL     string        `yaml:"indexer_url" env:"DAO_INDEXER_URL" validate:"required,url"`
	IndexerWSURL   string        `yaml:"indexer_ws_url" env:"DAO_INDEXER_WS_URL" validate:"omitempty,url"`
	ContractsFile  string        `yaml:"contracts_file" env:"DAO_CONTRACTS_FILE" validate:"required"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"DAO_POLL_INTERVAL" validate:"gte=0"`
	Confirmations  uint64        `yaml:"confirmations" env:"DAO_CONFIRMATIONS"`
	LogFile        string        `yaml:"log_file" env:"DAO_LOG_FILE"`
	MetricsAddress string        `yaml:"metrics_address" env:"DAO_METRICS_ADDRESS" validate:"omitempty,hostname_port"`
	// PrivateKey is only read from the environment.
	PrivateKey string `yaml:"-" env:"DAO_PRIVATE_KEY" validate:"omitempty,hexadecimal"`
}

// LoadConfig reads a configuration file from the given path, applies DAO_*
// environment overrides and validates the result.
func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := ClientConfig{LogFile: "client.log"}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}
