// Copyright 2025 Certen Protocol
//
// Multi-chain price and RPC aggregation for the EVM family.

package evm

import (
	"context"
	"fmt"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

// MultiChainSource fans out chain.RPCNonceSource, execution.GasPriceSource
// and evm.NativePriceSource over every dialed Strategy, so one NonceManager
// and one GasScheduler serve every configured EVM chain instead of one per
// chain.
type MultiChainSource struct {
	strategies  Strategies
	nativePrice map[ctypes.ChainID]float64
}

// NewMultiChainSource wires a MultiChainSource. nativePriceUsd is a
// static snapshot of each chain's native asset price, refreshed by the
// caller (e.g. on ConfigWatcher's poll cycle); no price-feed SDK ships in
// the retrieval pack and live price discovery beyond gas-cost accounting
// is an explicit non-goal, so a simple settable map stands in for it.
func NewMultiChainSource(strategies Strategies, nativePriceUsd map[ctypes.ChainID]float64) *MultiChainSource {
	return &MultiChainSource{strategies: strategies, nativePrice: nativePriceUsd}
}

func (m *MultiChainSource) strategyFor(chain ctypes.ChainID) (*Strategy, error) {
	s, ok := m.strategies.Get(chain)
	if !ok {
		return nil, fmt.Errorf("evm: no dialed strategy for chain %s", chain)
	}
	return s, nil
}

// TransactionCount implements chain.RPCNonceSource.
func (m *MultiChainSource) TransactionCount(ctx context.Context, chain ctypes.ChainID, address string) (uint64, error) {
	s, err := m.strategyFor(chain)
	if err != nil {
		return 0, err
	}
	return s.TransactionCount(ctx, chain, address)
}

// GasPriceGwei implements execution.GasPriceSource.
func (m *MultiChainSource) GasPriceGwei(ctx context.Context, chain ctypes.ChainID) (float64, error) {
	s, err := m.strategyFor(chain)
	if err != nil {
		return 0, err
	}
	return s.GasPriceGwei(ctx)
}

// NativeUsdPrice implements evm.NativePriceSource off the static snapshot.
func (m *MultiChainSource) NativeUsdPrice(ctx context.Context, chain ctypes.ChainID) (float64, error) {
	price, ok := m.nativePrice[chain]
	if !ok {
		return 0, fmt.Errorf("evm: no native price configured for chain %s", chain)
	}
	return price, nil
}

// SetNativeUsdPrice updates the static snapshot. The map write is not
// synchronized; a call concurrent with NativeUsdPrice or another
// SetNativeUsdPrice is a data race.
func (m *MultiChainSource) SetNativeUsdPrice(chain ctypes.ChainID, usd float64) {
	m.nativePrice[chain] = usd
}
