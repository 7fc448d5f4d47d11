package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T, key string, value string) {
	t.Helper()
	os.Setenv(key, value)
	t.Cleanup(func() {
		os.Unsetenv(key)
	})
}

func validConfig() *Config {
	return &Config{
		HTTPPort:             "8080",
		SignerMode:           SignerModeKey,
		PriceValidityWindow:  60 * time.Second,
		PermitValidityWindow: time.Hour,
		CooldownWindow:       20 * time.Second,
		NonceLedgerMode:      LedgerMemory,
		StorageMode:          StorageConsole,
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.PriceValidityWindow != 60*time.Second {
		t.Errorf("expected PriceValidityWindow 60s, got %v", cfg.PriceValidityWindow)
	}
	if cfg.PermitValidityWindow != time.Hour {
		t.Errorf("expected PermitValidityWindow 1h, got %v", cfg.PermitValidityWindow)
	}
	if cfg.CooldownWindow != 20*time.Second {
		t.Errorf("expected CooldownWindow 20s, got %v", cfg.CooldownWindow)
	}
	if !cfg.CooldownFailOpen {
		t.Error("expected CooldownFailOpen to default to true")
	}
	if cfg.SignerMode != SignerModeKey {
		t.Errorf("expected SignerMode %q, got %q", SignerModeKey, cfg.SignerMode)
	}
	if cfg.NonceLedgerMode != LedgerMemory {
		t.Errorf("expected NonceLedgerMode %q, got %q", LedgerMemory, cfg.NonceLedgerMode)
	}
	if cfg.PostgresDB != "typed_signer" {
		t.Errorf("expected PostgresDB typed_signer, got %q", cfg.PostgresDB)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Run("cooldown_fail_closed", func(t *testing.T) {
		setEnv(t, "COOLDOWN_FAIL_OPEN", "false")
		setEnv(t, "COOLDOWN_WINDOW", "45s")

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.CooldownFailOpen {
			t.Error("expected CooldownFailOpen false")
		}
		if cfg.CooldownWindow != 45*time.Second {
			t.Errorf("expected CooldownWindow 45s, got %v", cfg.CooldownWindow)
		}
	})

	t.Run("relayer_key_defaults_to_signer_key", func(t *testing.T) {
		setEnv(t, "SIGNER_PRIVATE_KEY", "0xabc")

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.RelayerPrivateKey != "0xabc" {
			t.Errorf("expected RelayerPrivateKey 0xabc, got %q", cfg.RelayerPrivateKey)
		}
	})

	t.Run("malformed_values_fall_back", func(t *testing.T) {
		setEnv(t, "PRICE_VALIDITY_WINDOW", "soon")
		setEnv(t, "REDIS_DB", "x")
		setEnv(t, "COOLDOWN_FAIL_OPEN", "maybe")

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.PriceValidityWindow != 60*time.Second {
			t.Errorf("expected fallback 60s, got %v", cfg.PriceValidityWindow)
		}
		if cfg.RedisDB != 0 {
			t.Errorf("expected fallback 0, got %d", cfg.RedisDB)
		}
		if !cfg.CooldownFailOpen {
			t.Error("expected fallback true")
		}
	})

	t.Run("remote_mode_needs_bridge", func(t *testing.T) {
		setEnv(t, "SIGNER_MODE", "remote")

		_, err := LoadFromEnv()
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "empty_port", mutate: func(c *Config) { c.HTTPPort = "" }, wantErr: "HTTP_PORT"},
		{name: "negative_chain", mutate: func(c *Config) { c.ChainID = -1 }, wantErr: "CHAIN_ID"},
		{name: "bad_signer_mode", mutate: func(c *Config) { c.SignerMode = "ledger" }, wantErr: "SIGNER_MODE"},
		{name: "zero_price_window", mutate: func(c *Config) { c.PriceValidityWindow = 0 }, wantErr: "PRICE_VALIDITY_WINDOW"},
		{name: "zero_permit_window", mutate: func(c *Config) { c.PermitValidityWindow = 0 }, wantErr: "PERMIT_VALIDITY_WINDOW"},
		{name: "negative_cooldown", mutate: func(c *Config) { c.CooldownWindow = -time.Second }, wantErr: "COOLDOWN_WINDOW"},
		{name: "zero_cooldown_allowed", mutate: func(c *Config) { c.CooldownWindow = 0 }},
		{name: "bad_ledger_mode", mutate: func(c *Config) { c.NonceLedgerMode = "disk" }, wantErr: "NONCE_LEDGER_MODE"},
		{name: "redis_without_addr", mutate: func(c *Config) { c.NonceLedgerMode = LedgerRedis }, wantErr: "REDIS_ADDR"},
		{name: "bad_storage_mode", mutate: func(c *Config) { c.StorageMode = "sqlite" }, wantErr: "STORAGE_MODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequireRPC(t *testing.T) {
	cfg := validConfig()
	if cfg.RequireRPC() == nil {
		t.Error("expected error for empty RPC_URL")
	}

	cfg.RPCURL = "http://localhost:8545"
	if err := cfg.RequireRPC(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	setEnv(t, "LOG_LEVEL", "debug")
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	setEnv(t, "LOG_LEVEL", "loud")
	_, err = NewLogger()
	if err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestNewCLILogger(t *testing.T) {
	logger, err := NewCLILogger()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Error("expected debug to be disabled by default")
	}
}
