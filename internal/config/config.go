// Package config loads the orchestrator's process configuration from
// environment variables, grounded on pkg/config/config.go's flat-struct
// + getEnv*/Validate() idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process-level configuration for the orchestrator.
// SystemConfig (kill_switch, caps, ...) is separate: it lives in the
// database and is read through internal/policy's ConfigWatcher, not here.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int
	DatabaseMaxLifetime int

	// Queue: an optional external broker endpoint and consumer group name.
	// QueueURL is loaded but nothing dials it: internal/store.SignalQueue
	// always polls the signals table in DatabaseURL.
	QueueURL   string
	ConsumerID string

	// KeyVault
	WalletEncryptionKey string // WALLET_ENCRYPTION_KEY, >= 32 chars

	// Hot keys, one per chain family. Absent -> PendingSignature mode.
	EvmPrivateKey    string
	AptosPrivateKey  string
	SolanaPrivateKey string

	// Operational wallet addresses, used when no hot key signs directly
	// but the executor still needs to know whose balance/nonce to read.
	EvmWalletAddress    string
	AptosWalletAddress  string
	SolanaWalletAddress string

	// Per-chain RPC URLs, keyed by ChainID string (e.g. "ethereum").
	ChainRPCURLs map[string]string

	// Slippage defaults (§6 env vars).
	SlippagePct     float64
	SwapSlippagePct float64

	// OverlayPath is the path read from CONFIG_OVERLAY_PATH. Nothing in
	// this module opens or parses the file it names; slippage tables and
	// gas thresholds come from the env-var defaults only.
	OverlayPath string

	// FusionApiKey enables the 1inch Fusion route in the intent router
	// (§4.6) when non-empty; left unset, SelectRoute never chooses
	// 1inch_fusion.
	FusionApiKey string

	LogLevel string
}

// Load reads configuration from environment variables. Call Validate()
// afterward before starting the service.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_PORT", "8081"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),

		QueueURL:   getEnv("SIGNAL_QUEUE_URL", ""),
		ConsumerID: getEnv("SIGNAL_CONSUMER_ID", "orchestrator-1"),

		WalletEncryptionKey: getEnv("WALLET_ENCRYPTION_KEY", ""),

		EvmPrivateKey:    getEnv("EXECUTOR_EVM_PRIVATE_KEY", ""),
		AptosPrivateKey:  getEnv("EXECUTOR_APTOS_PRIVATE_KEY", ""),
		SolanaPrivateKey: getEnv("EXECUTOR_SOLANA_PRIVATE_KEY", ""),

		EvmWalletAddress:    getEnv("EVM_WALLET_ADDRESS", ""),
		AptosWalletAddress:  getEnv("APTOS_WALLET_ADDRESS", ""),
		SolanaWalletAddress: getEnv("SOLANA_WALLET_ADDRESS", ""),

		ChainRPCURLs: map[string]string{
			"ethereum": getEnv("ETHEREUM_RPC_URL", ""),
			"arbitrum": getEnv("ARBITRUM_RPC_URL", ""),
			"optimism": getEnv("OPTIMISM_RPC_URL", ""),
			"base":     getEnv("BASE_RPC_URL", ""),
			"polygon":  getEnv("POLYGON_RPC_URL", ""),
			"bsc":      getEnv("BSC_RPC_URL", ""),
			"solana":   getEnv("SOLANA_RPC_URL", ""),
			"aptos":    getEnv("APTOS_RPC_URL", ""),
		},

		SlippagePct:     getEnvFloat("EXECUTOR_SLIPPAGE_PCT", 2.0),
		SwapSlippagePct: getEnvFloat("EXECUTOR_SWAP_SLIPPAGE_PCT", 1.5),

		OverlayPath: getEnv("CONFIG_OVERLAY_PATH", ""),

		FusionApiKey: getEnv("ONEINCH_FUSION_API_KEY", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present. Per §6, a
// missing KeyVault key is fatal at startup (ConfigError); a missing
// per-chain private key is not fatal, it just drops that chain into
// PendingSignature mode.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required but not set")
	}
	// SIGNAL_QUEUE_URL has no required default: the built-in SignalQueue
	// polls the signals table in the same Postgres database whether or not
	// QueueURL is set.
	if c.WalletEncryptionKey == "" {
		errs = append(errs, "WALLET_ENCRYPTION_KEY is required but not set")
	} else if len(c.WalletEncryptionKey) < 32 {
		errs = append(errs, "WALLET_ENCRYPTION_KEY must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RPCURL returns the configured RPC endpoint for a chain, or "" if unset.
func (c *Config) RPCURL(chain string) string {
	return c.ChainRPCURLs[chain]
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
