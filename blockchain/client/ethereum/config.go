package ethereum

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// EthereumConfig stores Ethereum-specific configuration
type EthereumConfig struct {
	// --- JSON-RPC Connection ---
	RPCURL  string `yaml:"rpc_url"`
	ChainID int64  `yaml:"chain_id"`

	// --- Signer Credential ---
	// Hex-encoded secp256k1 private key file; the derived address is the
	// signer identity recorded on the audit log.
	KeyFilePath string `yaml:"key_file_path"`

	// --- Contract Binding ---
	ContractAddress string `yaml:"contract_address"`

	// --- Fee Policy ---
	// Fixed gas price in wei (legacy transactions); the gas LIMIT is decided
	// per attempt by the submitter.
	GasPriceWei int64 `yaml:"gas_price_wei"`

	// --- Confirmation Polling ---
	ReceiptPollInterval string `yaml:"receipt_poll_interval"`
	RequestTimeout      string `yaml:"request_timeout"`
}

// Validate validates the Ethereum configuration
func (c *EthereumConfig) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("ethereum rpc_url is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("ethereum contract_address is required")
	}
	if c.KeyFilePath == "" {
		return fmt.Errorf("ethereum key_file_path is required")
	}
	return nil
}

// LoadEthereumConfig loads Ethereum configuration from the specified YAML file path
func LoadEthereumConfig(path string) (*EthereumConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of Ethereum config file: %w", err)
	}

	fmt.Printf("Loading Ethereum configuration from '%s'...\n", absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read Ethereum config file '%s': %w", absPath, err)
	}

	var cfg EthereumConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse Ethereum YAML config file: %w", err)
	}
	if cfg.ReceiptPollInterval == "" {
		cfg.ReceiptPollInterval = "1s"
	}
	if cfg.RequestTimeout == "" {
		cfg.RequestTimeout = "15s"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fmt.Println("Ethereum configuration loaded successfully.")
	return &cfg, nil
}
