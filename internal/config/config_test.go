package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Chain.ChainID != 42161 {
		t.Errorf("chain id = %d", cfg.Chain.ChainID)
	}
	if cfg.Store.Mode != StoreModeMemory {
		t.Errorf("store mode = %q", cfg.Store.Mode)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `server:
  addr: ":9090"
logging:
  level: debug
chain:
  rpc_url: https://arb1.arbitrum.io/rpc
  chain_id: 42161
wallet:
  account: "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
store:
  mode: remote
  base_url: https://api.example.com
  api_key: secret
auth:
  enabled: true
  secret: hmac-secret
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Store.Mode != StoreModeRemote || cfg.Store.BaseURL != "https://api.example.com" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Secret != "hmac-secret" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	// Defaults survive for fields the file omits.
	if cfg.Server.ShutdownTimeout == 0 {
		t.Error("shutdown timeout default lost")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENTLAYER_ADDR", ":7070")
	t.Setenv("AGENTLAYER_CHAIN_ID", "1")
	t.Setenv("AGENTLAYER_STORE_MODE", "remote")
	t.Setenv("AGENTLAYER_STORE_URL", "https://env.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Chain.ChainID != 1 {
		t.Errorf("chain id = %d", cfg.Chain.ChainID)
	}
	if cfg.Store.BaseURL != "https://env.example.com" {
		t.Errorf("store url = %q", cfg.Store.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing chain id", func(c *Config) { c.Chain.ChainID = 0 }},
		{"missing rpc url", func(c *Config) { c.Chain.RPCURL = "" }},
		{"unknown store mode", func(c *Config) { c.Store.Mode = "etcd" }},
		{"remote without url", func(c *Config) { c.Store.Mode = StoreModeRemote }},
		{"postgres without dsn", func(c *Config) { c.Store.Mode = StoreModePostgres }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}
