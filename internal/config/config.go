// Package config loads the application configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Chain     ChainConfig     `yaml:"chain"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Store     StoreConfig     `yaml:"store"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins enables CORS for the listed origins; "*" allows all.
	// Empty disables CORS handling.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type ChainConfig struct {
	RPCURL  string        `yaml:"rpc_url"`
	ChainID uint64        `yaml:"chain_id"`
	Timeout time.Duration `yaml:"timeout"`
}

type WalletConfig struct {
	// Account optionally pre-connects an account at startup.
	Account string `yaml:"account"`
}

// Store modes.
const (
	StoreModeMemory   = "memory"
	StoreModeRemote   = "remote"
	StoreModePostgres = "postgres"
)

type StoreConfig struct {
	// Mode is memory, remote or postgres.
	Mode string `yaml:"mode"`
	// BaseURL and APIKey configure the remote entitlement store.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// DSN configures the postgres entitlement store.
	DSN string `yaml:"dsn"`
}

type CatalogConfig struct {
	// Path to a YAML catalog file. Empty means the built-in catalog.
	Path string `yaml:"path"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 42161,
			Timeout: 15 * time.Second,
		},
		Store: StoreConfig{Mode: StoreModeMemory},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

// Load reads the config file at path, falling back to defaults for omitted
// fields, then applies environment overrides. An empty path loads defaults
// plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chain_id is required")
	}
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	switch c.Store.Mode {
	case StoreModeMemory:
	case StoreModeRemote:
		if strings.TrimSpace(c.Store.BaseURL) == "" {
			return fmt.Errorf("store.base_url is required for remote mode")
		}
	case StoreModePostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for postgres mode")
		}
	default:
		return fmt.Errorf("unknown store.mode %q", c.Store.Mode)
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "AGENTLAYER_ADDR")
	setString(&cfg.Logging.Level, "AGENTLAYER_LOG_LEVEL")
	setString(&cfg.Logging.Format, "AGENTLAYER_LOG_FORMAT")
	setString(&cfg.Chain.RPCURL, "AGENTLAYER_RPC_URL")
	setUint64(&cfg.Chain.ChainID, "AGENTLAYER_CHAIN_ID")
	setString(&cfg.Wallet.Account, "AGENTLAYER_WALLET_ACCOUNT")
	setString(&cfg.Store.Mode, "AGENTLAYER_STORE_MODE")
	setString(&cfg.Store.BaseURL, "AGENTLAYER_STORE_URL")
	setString(&cfg.Store.APIKey, "AGENTLAYER_STORE_API_KEY")
	setString(&cfg.Store.DSN, "AGENTLAYER_DATABASE_DSN")
	setString(&cfg.Catalog.Path, "AGENTLAYER_CATALOG_PATH")
	setString(&cfg.Auth.Secret, "AGENTLAYER_AUTH_SECRET")
	if v := os.Getenv("AGENTLAYER_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = v == "true" || v == "1"
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setUint64(dst *uint64, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
		*dst = parsed
	}
}
