// Copyright 2025 Certen Protocol
//
// Unit tests for EVM balance and calldata encoding.

package evm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

func TestStrategyMap_GetReturnsRegisteredStrategy(t *testing.T) {
	s := &Strategy{}
	m := StrategyMap{ctypes.ChainEthereum: s}

	got, ok := m.Get(ctypes.ChainEthereum)
	require.True(t, ok)
	require.Same(t, s, got)

	_, ok = m.Get(ctypes.ChainArbitrum)
	require.False(t, ok)
}

func TestEncodeWrapDeposit_PacksNoArgDepositSelectorWithValue(t *testing.T) {
	f := NewFundsClient(StrategyMap{})
	amount := big.NewInt(1_000_000_000_000_000_000)

	payload, err := f.EncodeWrapDeposit(ctypes.ChainEthereum, "0xWrappedToken", amount)
	require.NoError(t, err)
	require.Equal(t, ctypes.ChainEthereum, payload.ChainID)
	require.Equal(t, "0xWrappedToken", payload.To)
	require.Equal(t, amount, payload.ValueWei)

	expected, err := parsedERC20ABI.Pack("deposit")
	require.NoError(t, err)
	require.Equal(t, expected, payload.Data)
}

func TestEncodeApprove_PacksSpenderAndAmountWithZeroValue(t *testing.T) {
	f := NewFundsClient(StrategyMap{})
	amount := big.NewInt(500)

	payload, err := f.EncodeApprove(ctypes.ChainEthereum, "0xToken", "0xSpender", amount)
	require.NoError(t, err)
	require.Equal(t, "0xToken", payload.To)
	require.Equal(t, big.NewInt(0), payload.ValueWei)
	require.NotEmpty(t, payload.Data)
	// approve selector is the first 4 bytes of keccak256("approve(address,uint256)")
	require.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, payload.Data[:4])
}
