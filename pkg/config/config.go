package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Signer, ledger and storage modes.
const (
	SignerModeKey    = "key"
	SignerModeRemote = "remote"
	LedgerMemory     = "memory"
	LedgerRedis      = "redis"
	StorageConsole   = "console"
	StoragePostgres  = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Chain
	RPCURL  string
	ChainID int64 // 0 = ask the signer

	// Signer
	SignerMode           string
	SignerPrivateKey     string
	SignerBridgeURL      string
	SignerRequestTimeout time.Duration
	RelayerPrivateKey    string

	// Validity windows
	PriceValidityWindow  time.Duration
	PermitValidityWindow time.Duration

	// Validator
	CooldownWindow   time.Duration
	CooldownFailOpen bool

	// Nonce ledger
	NonceLedgerMode string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	NonceLedgerTTL  time.Duration

	// Broadcaster
	ReceiptTimeout time.Duration

	// Cache
	NameCacheTTL time.Duration

	// Storage
	StorageMode  string
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	signerKey := os.Getenv("SIGNER_PRIVATE_KEY")

	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		RPCURL:  os.Getenv("RPC_URL"),
		ChainID: int64(getIntOrDefault("CHAIN_ID", 0)),

		SignerMode:           getEnvOrDefault("SIGNER_MODE", SignerModeKey),
		SignerPrivateKey:     signerKey,
		SignerBridgeURL:      os.Getenv("SIGNER_BRIDGE_URL"),
		SignerRequestTimeout: getDurationOrDefault("SIGNER_REQUEST_TIMEOUT", 2*time.Minute),
		RelayerPrivateKey:    getEnvOrDefault("RELAYER_PRIVATE_KEY", signerKey),

		PriceValidityWindow:  getDurationOrDefault("PRICE_VALIDITY_WINDOW", 60*time.Second),
		PermitValidityWindow: getDurationOrDefault("PERMIT_VALIDITY_WINDOW", time.Hour),

		CooldownWindow:   getDurationOrDefault("COOLDOWN_WINDOW", 20*time.Second),
		CooldownFailOpen: getBoolOrDefault("COOLDOWN_FAIL_OPEN", true),

		NonceLedgerMode: getEnvOrDefault("NONCE_LEDGER_MODE", LedgerMemory),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getIntOrDefault("REDIS_DB", 0),
		NonceLedgerTTL:  getDurationOrDefault("NONCE_LEDGER_TTL", 24*time.Hour),

		ReceiptTimeout: getDurationOrDefault("RECEIPT_TIMEOUT", 2*time.Minute),

		NameCacheTTL: getDurationOrDefault("NAME_CACHE_TTL", 10*time.Minute),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", StorageConsole),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "typedsigner"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "typedsigner"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "typed_signer"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid. Credentials are
// checked by the components that need them, so read-only commands work
// without a key.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.ChainID < 0 {
		return fmt.Errorf("CHAIN_ID cannot be negative, got %d", c.ChainID)
	}

	if c.SignerMode != SignerModeKey && c.SignerMode != SignerModeRemote {
		return fmt.Errorf("SIGNER_MODE must be 'key' or 'remote', got %q", c.SignerMode)
	}

	if c.SignerMode == SignerModeRemote && c.SignerBridgeURL == "" {
		return fmt.Errorf("SIGNER_BRIDGE_URL cannot be empty when SIGNER_MODE=remote")
	}

	if c.PriceValidityWindow <= 0 {
		return fmt.Errorf("PRICE_VALIDITY_WINDOW must be positive, got %s", c.PriceValidityWindow)
	}

	if c.PermitValidityWindow <= 0 {
		return fmt.Errorf("PERMIT_VALIDITY_WINDOW must be positive, got %s", c.PermitValidityWindow)
	}

	if c.CooldownWindow < 0 {
		return fmt.Errorf("COOLDOWN_WINDOW cannot be negative, got %s", c.CooldownWindow)
	}

	if c.NonceLedgerMode != LedgerMemory && c.NonceLedgerMode != LedgerRedis {
		return fmt.Errorf("NONCE_LEDGER_MODE must be 'memory' or 'redis', got %q", c.NonceLedgerMode)
	}

	if c.NonceLedgerMode == LedgerRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR cannot be empty when NONCE_LEDGER_MODE=redis")
	}

	if c.StorageMode != StorageConsole && c.StorageMode != StoragePostgres {
		return fmt.Errorf("STORAGE_MODE must be 'console' or 'postgres', got %q", c.StorageMode)
	}

	return nil
}

// RequireRPC reports a missing RPC_URL for commands that touch the chain.
func (c *Config) RequireRPC() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL not set in .env")
	}
	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
