// Copyright 2025 Certen Protocol
//
// Unit tests for configuration loading and validation.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenEnvUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	require.Equal(t, 25, cfg.DatabaseMaxConns)
	require.Equal(t, 2.0, cfg.SlippagePct)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("DATABASE_MAX_CONNS", "50")
	t.Setenv("EXECUTOR_SLIPPAGE_PCT", "3.25")
	t.Setenv("ETHEREUM_RPC_URL", "https://eth.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	require.Equal(t, 50, cfg.DatabaseMaxConns)
	require.Equal(t, 3.25, cfg.SlippagePct)
	require.Equal(t, "https://eth.example", cfg.RPCURL("ethereum"))
}

func TestGetEnvInt_FallsBackOnUnparsableValue(t *testing.T) {
	t.Setenv("DATABASE_MAX_CONNS", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 25, cfg.DatabaseMaxConns)
}

func TestGetEnvDuration_ParsesAndFallsBack(t *testing.T) {
	require.Equal(t, 5*time.Second, getEnvDuration("UNSET_DURATION_KEY", 5*time.Second))

	t.Setenv("TEST_DURATION_KEY", "250ms")
	require.Equal(t, 250*time.Millisecond, getEnvDuration("TEST_DURATION_KEY", time.Second))

	t.Setenv("TEST_DURATION_KEY", "not-a-duration")
	require.Equal(t, time.Second, getEnvDuration("TEST_DURATION_KEY", time.Second))
}

func TestRPCURL_UnknownChainReturnsEmpty(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "", cfg.RPCURL("unknown-chain"))
}

func TestValidate_MissingDatabaseURLAndKeyFails(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DATABASE_URL")
	require.Contains(t, err.Error(), "WALLET_ENCRYPTION_KEY")
}

func TestValidate_ShortEncryptionKeyFails(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://localhost/db", WalletEncryptionKey: "tooshort"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least 32 characters")
}

func TestValidate_CompleteConfigPasses(t *testing.T) {
	cfg := &Config{
		DatabaseURL:         "postgres://localhost/db",
		WalletEncryptionKey: "01234567890123456789012345678901",
	}
	require.NoError(t, cfg.Validate())
}
