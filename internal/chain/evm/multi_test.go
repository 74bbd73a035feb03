// Copyright 2025 Certen Protocol
//
// Unit tests for the multi-chain price source.

package evm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

func TestMultiChainSource_NativeUsdPriceReturnsConfiguredSnapshot(t *testing.T) {
	m := NewMultiChainSource(StrategyMap{}, map[ctypes.ChainID]float64{ctypes.ChainEthereum: 3200.5})

	price, err := m.NativeUsdPrice(context.Background(), ctypes.ChainEthereum)
	require.NoError(t, err)
	require.Equal(t, 3200.5, price)
}

func TestMultiChainSource_NativeUsdPriceUnconfiguredChainErrors(t *testing.T) {
	m := NewMultiChainSource(StrategyMap{}, map[ctypes.ChainID]float64{})

	_, err := m.NativeUsdPrice(context.Background(), ctypes.ChainArbitrum)
	require.Error(t, err)
}

func TestMultiChainSource_SetNativeUsdPriceUpdatesSnapshot(t *testing.T) {
	m := NewMultiChainSource(StrategyMap{}, map[ctypes.ChainID]float64{})

	m.SetNativeUsdPrice(ctypes.ChainPolygon, 0.75)
	price, err := m.NativeUsdPrice(context.Background(), ctypes.ChainPolygon)
	require.NoError(t, err)
	require.Equal(t, 0.75, price)
}

func TestMultiChainSource_TransactionCountErrorsWithoutDialedStrategy(t *testing.T) {
	m := NewMultiChainSource(StrategyMap{}, nil)

	_, err := m.TransactionCount(context.Background(), ctypes.ChainEthereum, "0xwallet")
	require.Error(t, err)
}

func TestMultiChainSource_GasPriceGweiErrorsWithoutDialedStrategy(t *testing.T) {
	m := NewMultiChainSource(StrategyMap{}, nil)

	_, err := m.GasPriceGwei(context.Background(), ctypes.ChainEthereum)
	require.Error(t, err)
}
