package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// BlockchainConfig stores common ledger configuration across all blockchain types
type BlockchainConfig struct {
	// --- Blockchain Type Selection ---
	BlockchainType string `yaml:"blockchain_type"` // "ethereum", "chainmaker", "mock"

	// --- Submission Policy ---
	// GasEstimationTimeout bounds the estimation phase; estimation must never
	// inherit the transport's default deadline.
	GasEstimationTimeout string `yaml:"gas_estimation_timeout"`
	// DefaultGasLimit is the conservative limit used when estimation times
	// out or fails.
	DefaultGasLimit uint64 `yaml:"default_gas_limit"`
	// GasRetryFactor bumps the gas limit for the single retry attempt.
	GasRetryFactor float64 `yaml:"gas_retry_factor"`
	// ConfirmationTimeout is the ceiling on waiting for a transaction to
	// confirm before the attempt is treated as failed.
	ConfirmationTimeout string `yaml:"confirmation_timeout"`
	// FallbackTransferWei is the value moved by the fallback proof
	// transaction. The amount is policy, not protocol; any non-zero value
	// yields a confirmed, timestamped transaction id.
	FallbackTransferWei int64 `yaml:"fallback_transfer_wei"`

	// --- Chain-specific Configuration ---
	// This will be loaded separately based on blockchain type
	ChainSpecific any `yaml:"-"`
}

// SetDefaults sets reasonable default values for the submission policy
func (c *BlockchainConfig) SetDefaults() {
	if c.GasEstimationTimeout == "" {
		c.GasEstimationTimeout = "5s"
		fmt.Printf("Warning: blockchain.gas_estimation_timeout not set, defaulting to %s\n", c.GasEstimationTimeout)
	}
	if c.DefaultGasLimit == 0 {
		c.DefaultGasLimit = 300000
		fmt.Printf("Warning: blockchain.default_gas_limit not set, defaulting to %d\n", c.DefaultGasLimit)
	}
	if c.GasRetryFactor <= 1.0 {
		c.GasRetryFactor = 1.5
	}
	if c.ConfirmationTimeout == "" {
		c.ConfirmationTimeout = "60s"
		fmt.Printf("Warning: blockchain.confirmation_timeout not set, defaulting to %s\n", c.ConfirmationTimeout)
	}
	if c.FallbackTransferWei <= 0 {
		c.FallbackTransferWei = 1
	}
}

// LoadBlockchainConfig loads ledger configuration from the specified YAML file path
func LoadBlockchainConfig(path string) (*BlockchainConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config file: %w", err)
	}

	fmt.Printf("Loading blockchain configuration from '%s'...\n", absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", absPath, err)
	}

	var cfg BlockchainConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	cfg.SetDefaults()

	fmt.Println("Blockchain configuration loaded successfully.")
	return &cfg, nil
}
