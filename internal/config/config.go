package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Relay      RelayConfig      `yaml:"relay"`
	Webhooks   WebhookConfig    `yaml:"webhooks"`
	CORS       CORSConfig       `yaml:"cors"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration. Lifecycle event publishing
// is disabled when URL is empty.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// BlockchainConfig blockchain network configuration
type BlockchainConfig struct {
	Networks map[string]*NetworkConfig `yaml:"networks"`
}

// NetworkConfig per-network configuration
type NetworkConfig struct {
	ChainID      uint64   `yaml:"chainId"`
	Name         string   `yaml:"name"`
	RPCEndpoints []string `yaml:"rpcEndpoints"`
	PrivateKey   string   `yaml:"privateKey"` // hex, backend wallet key; prefer env override
	GasLimit     uint64   `yaml:"gasLimit"`
	GasPrice     string   `yaml:"gasPrice"` // decimal wei or "auto"
	Enabled      bool     `yaml:"enabled"`
}

// RelayConfig submission worker policy
type RelayConfig struct {
	MaxRetries          int `yaml:"max_retries"`          // attempts before a record moves to errored
	RetryBaseDelaySec   int `yaml:"retry_base_delay"`     // seconds, doubled per attempt
	RetryMaxDelaySec    int `yaml:"retry_max_delay"`      // seconds, backoff cap
	ConfirmationDepth   int `yaml:"confirmation_depth"`   // blocks past inclusion before confirmed
	ConfirmationTimeout int `yaml:"confirmation_timeout"` // seconds a submitted tx may stay unmined
	ReceiptPollInterval int `yaml:"receipt_poll_interval"`
}

// WebhookConfig outbound notification settings
type WebhookConfig struct {
	TimeoutSec int `yaml:"timeout"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	JWTSecret   string   `yaml:"jwt_secret"`
	TOTPSecret  string   `yaml:"totp_secret"`
	TokenTTLMin int      `yaml:"token_ttl_minutes"`
	AllowedIPs  []string `yaml:"allowed_ips"` // extra IPs/CIDRs for bootstrap endpoints, localhost always allowed
}

// AppConfig global configuration instance
var AppConfig *Config

// RetryBaseDelay returns the base backoff delay as a duration
func (r *RelayConfig) RetryBaseDelay() time.Duration {
	if r.RetryBaseDelaySec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.RetryBaseDelaySec) * time.Second
}

// RetryMaxDelay returns the backoff cap as a duration
func (r *RelayConfig) RetryMaxDelay() time.Duration {
	if r.RetryMaxDelaySec <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(r.RetryMaxDelaySec) * time.Second
}

// ConfirmationWait returns how long a submitted transaction may stay
// unmined before it escalates to errored
func (r *RelayConfig) ConfirmationWait() time.Duration {
	if r.ConfirmationTimeout <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(r.ConfirmationTimeout) * time.Second
}

// PollInterval returns the receipt poll interval
func (r *RelayConfig) PollInterval() time.Duration {
	if r.ReceiptPollInterval <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.ReceiptPollInterval) * time.Second
}

// Depth returns the confirmation depth, defaulting to 5 blocks
func (r *RelayConfig) Depth() int {
	if r.ConfirmationDepth <= 0 {
		return 5
	}
	return r.ConfirmationDepth
}

// Retries returns the retry budget, defaulting to 3 attempts
func (r *RelayConfig) Retries() int {
	if r.MaxRetries <= 0 {
		return 3
	}
	return r.MaxRetries
}

// Timeout returns the webhook dispatch timeout
func (w *WebhookConfig) Timeout() time.Duration {
	if w.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.TimeoutSec) * time.Second
}

// LoadConfig loads configuration from a YAML file, then applies environment
// variable overrides. CONFIG_PATH wins over the default search list.
func LoadConfig() error {
	var config Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		for _, candidate := range []string{"config.yaml", "config/config.yaml", "/etc/relayer/config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overrideFromEnv(&config)

	if config.Blockchain.Networks == nil {
		config.Blockchain.Networks = make(map[string]*NetworkConfig)
	}

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}
	if secret := os.Getenv("ADMIN_TOTP_SECRET"); secret != "" {
		config.Admin.TOTPSecret = secret
	}

	// Per-network overrides: <NETWORK>_PRIVATE_KEY and <NETWORK>_RPC_ENDPOINTS,
	// with PRIVATE_KEY as a generic fallback.
	for networkName, networkConfig := range config.Blockchain.Networks {
		envPrivateKey := fmt.Sprintf("%s_PRIVATE_KEY", strings.ToUpper(networkName))
		if privateKey := os.Getenv(envPrivateKey); privateKey != "" {
			networkConfig.PrivateKey = privateKey
		} else if privateKey := os.Getenv("PRIVATE_KEY"); privateKey != "" {
			networkConfig.PrivateKey = privateKey
		}

		envRPC := fmt.Sprintf("%s_RPC_ENDPOINTS", strings.ToUpper(networkName))
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			networkConfig.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}
	}
}

// GetNetworkConfigByChainID returns the network configuration for a chain ID
func GetNetworkConfigByChainID(chainID uint64) (*NetworkConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	for _, networkConfig := range AppConfig.Blockchain.Networks {
		if networkConfig.ChainID == chainID {
			return networkConfig, nil
		}
	}
	return nil, fmt.Errorf("no network configured for chain ID %d", chainID)
}
