package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// KafkaProducerConfig defines configuration for Kafka producer
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Batch processing settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"`
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// ScoringConfig points the gateway at the external risk-scoring service
type ScoringConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// SetDefaults sets reasonable default values for the scoring client
func (c *ScoringConfig) SetDefaults() {
	if c.Timeout == "" {
		c.Timeout = "10s"
		fmt.Printf("Warning: scoring.timeout not set, defaulting to %s\n", c.Timeout)
	}
}

// GatewayConfig defines all configurations required for the sample gateway
type GatewayConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`

	Database      DatabaseConfig      `yaml:"database"`       // Use unified DatabaseConfig
	KafkaProducer KafkaProducerConfig `yaml:"kafka_producer"` // Local Kafka producer config
	HttpServer    HttpServerConfig    `yaml:"http_server"`
	Scoring       ScoringConfig       `yaml:"scoring"`

	// AsyncAnchoring writes steps to the replica unverified and hands the
	// ledger submission to the anchor engine via Kafka. When false the
	// gateway submits synchronously and the response carries the outcome.
	AsyncAnchoring bool `yaml:"async_anchoring"`

	// Blockchain Client Configuration (used in synchronous mode)
	BlockchainClientConfigPath string `yaml:"blockchain_client_config_path"`
}

// LoadGatewayConfig loads gateway configuration from the specified YAML file path
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config file '%s': %w", path, err)
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gateway YAML config file: %w", err)
	}

	// Set defaults
	cfg.Database.SetDefaults()
	cfg.Scoring.SetDefaults()

	// Validation
	if cfg.HttpListenAddr == "" {
		return nil, fmt.Errorf("configuration error: http_listen_addr must be configured")
	}
	if cfg.AsyncAnchoring && len(cfg.KafkaProducer.Brokers) == 0 {
		return nil, fmt.Errorf("configuration error: async_anchoring requires kafka_producer.brokers")
	}

	// Validate database configuration
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}

	return &cfg, nil
}
