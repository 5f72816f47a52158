package blockchain

import (
	"fmt"
	"log"
	"path/filepath"

	"sampletrace/blockchain/client/chainmaker"
	"sampletrace/blockchain/client/ethereum"
	"sampletrace/blockchain/client/mock"
	"sampletrace/config"
)

// BlockchainType represents the type of ledger client
type BlockchainType string

const (
	Ethereum   BlockchainType = "ethereum"
	ChainMaker BlockchainType = "chainmaker"
	// Mock keeps the full step-ordering semantics in memory for local runs
	Mock BlockchainType = "mock"
)

// LoadChainSpecificConfig loads chain-specific configuration based on blockchain type
func LoadChainSpecificConfig(blockchainType string, configDir string) (any, error) {
	switch BlockchainType(blockchainType) {
	case Ethereum, "":
		// Default to Ethereum if not specified
		return ethereum.LoadEthereumConfig(filepath.Join(configDir, "clients", "ethereum.yml"))
	case ChainMaker:
		return chainmaker.LoadChainMakerConfig(filepath.Join(configDir, "clients", "chainmaker.yml"))
	case Mock:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported blockchain type: %s", blockchainType)
	}
}

// NewLedgerClient creates a ledger client based on the configuration
func NewLedgerClient(cfg *config.BlockchainConfig, logger *log.Logger) (LedgerClient, error) {
	switch BlockchainType(cfg.BlockchainType) {
	case Ethereum, "":
		// Default to Ethereum if not specified
		return ethereum.NewEthereumClient(cfg, logger)
	case ChainMaker:
		return chainmaker.NewChainMakerClient(cfg, logger)
	case Mock:
		return mock.NewLedger(logger), nil
	default:
		return nil, fmt.Errorf("unsupported blockchain type: %s", cfg.BlockchainType)
	}
}

// NewLedgerClientFromFile creates a ledger client from configuration files
func NewLedgerClientFromFile(configPath string, logger *log.Logger) (LedgerClient, error) {
	// Load common configuration
	cfg, err := config.LoadBlockchainConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load common config from file '%s': %w", configPath, err)
	}

	// Load chain-specific configuration
	configDir := filepath.Dir(configPath)
	chainSpecificCfg, err := LoadChainSpecificConfig(cfg.BlockchainType, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain-specific config: %w", err)
	}

	cfg.ChainSpecific = chainSpecificCfg
	return NewLedgerClient(cfg, logger)
}
