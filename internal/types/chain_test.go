// Copyright 2025 Certen Protocol
//
// Unit tests for chain classification.

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsGasGated_MainnetEVMIsGated(t *testing.T) {
	c := Chain{ID: ChainEthereum, Family: FamilyEVM}
	require.True(t, c.IsGasGated())
}

func TestIsGasGated_KnownL2SkipsGating(t *testing.T) {
	c := Chain{ID: ChainArbitrum, Family: FamilyEVM}
	require.False(t, c.IsGasGated())
}

func TestIsGasGated_ExplicitIsL2FlagSkipsGating(t *testing.T) {
	c := Chain{ID: ChainEthereum, Family: FamilyEVM, IsL2: true}
	require.False(t, c.IsGasGated())
}

func TestIsGasGated_NonEVMFamilyNeverGated(t *testing.T) {
	require.False(t, Chain{ID: ChainSolana, Family: FamilySolana}.IsGasGated())
	require.False(t, Chain{ID: ChainAptos, Family: FamilyAptos}.IsGasGated())
}
