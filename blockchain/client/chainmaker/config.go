package chainmaker

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// NodeConfig stores detailed configuration for a single ChainMaker node
type NodeConfig struct {
	Address     string   `yaml:"address"`
	ConnCount   int      `yaml:"conn_count"`
	UseTLS      bool     `yaml:"use_tls"`
	TLSHostName string   `yaml:"tls_host_name"`
	CaPaths     []string `yaml:"ca_paths"`
}

// ChainMakerConfig stores ChainMaker-specific configuration
type ChainMakerConfig struct {
	// --- SDK Connection Required ---
	ChainID string `yaml:"chain_id"`
	OrgID   string `yaml:"org_id"`

	// TLS Connection Credentials
	UserKeyPath  string `yaml:"user_key_path"`
	UserCertPath string `yaml:"user_cert_path"`

	// Transaction Signing Credentials
	UserSignKeyPath  string `yaml:"user_sign_key_path"`
	UserSignCertPath string `yaml:"user_sign_cert_path"`

	Nodes []NodeConfig `yaml:"nodes"`

	// --- Contract Binding ---
	ContractName             string `yaml:"contract_name"`
	RecordStepMethodName     string `yaml:"record_step_method_name"`
	GetSampleMethodName      string `yaml:"get_sample_method_name"`
	VerifyStepMethodName     string `yaml:"verify_step_method_name"`
	ParamKeySampleID         string `yaml:"param_key_sample_id"`
	ParamKeyStep             string `yaml:"param_key_step"`
	ParamKeyStepHash         string `yaml:"param_key_step_hash"`
	InvokeTimeoutSeconds     int    `yaml:"invoke_timeout_seconds"`
	RetryLimit               int    `yaml:"retry_limit"`
	RetryInterval            int    `yaml:"retry_interval"`
}

// LoadChainMakerConfig loads ChainMaker configuration from the specified YAML file path
func LoadChainMakerConfig(path string) (*ChainMakerConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of ChainMaker config file: %w", err)
	}

	fmt.Printf("Loading ChainMaker configuration from '%s'...\n", absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ChainMaker config file '%s': %w", absPath, err)
	}

	var cfg ChainMakerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse ChainMaker YAML config file: %w", err)
	}

	if cfg.RecordStepMethodName == "" {
		cfg.RecordStepMethodName = "record_step"
	}
	if cfg.GetSampleMethodName == "" {
		cfg.GetSampleMethodName = "get_sample"
	}
	if cfg.VerifyStepMethodName == "" {
		cfg.VerifyStepMethodName = "verify_step"
	}
	if cfg.ParamKeySampleID == "" {
		cfg.ParamKeySampleID = "sample_id"
	}
	if cfg.ParamKeyStep == "" {
		cfg.ParamKeyStep = "step"
	}
	if cfg.ParamKeyStepHash == "" {
		cfg.ParamKeyStepHash = "step_hash"
	}
	if cfg.InvokeTimeoutSeconds <= 0 {
		cfg.InvokeTimeoutSeconds = 15
	}

	fmt.Println("ChainMaker configuration loaded successfully.")
	return &cfg, nil
}
