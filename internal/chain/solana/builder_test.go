// Copyright 2025 Certen Protocol
//
// Unit tests for Solana instruction building.

package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

func TestBuild_AssemblesTransactionWithFeePayerAsSigner(t *testing.T) {
	b := NewGenericInstructionBuilder()
	programID := solana.NewWallet().PublicKey()
	feePayer := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	payload := ctypes.SolanaPayload{
		ChainID:     ctypes.ChainSolana,
		ProgramID:   programID.String(),
		Accounts:    []string{feePayer.String(), other.String()},
		Instruction: []byte{1, 2, 3},
	}

	tx, err := b.Build(payload, feePayer)
	require.NoError(t, err)
	require.Len(t, tx.Message.Instructions, 1)

	accountKeys := tx.Message.AccountKeys
	require.Contains(t, accountKeys, feePayer)
	require.Contains(t, accountKeys, other)
}

func TestBuild_InvalidProgramIDFails(t *testing.T) {
	b := NewGenericInstructionBuilder()
	feePayer := solana.NewWallet().PublicKey()

	_, err := b.Build(ctypes.SolanaPayload{ProgramID: "not-base58-!!!"}, feePayer)
	require.Error(t, err)
}

func TestBuild_InvalidAccountFails(t *testing.T) {
	b := NewGenericInstructionBuilder()
	programID := solana.NewWallet().PublicKey()
	feePayer := solana.NewWallet().PublicKey()

	payload := ctypes.SolanaPayload{
		ProgramID: programID.String(),
		Accounts:  []string{"not-base58-!!!"},
	}

	_, err := b.Build(payload, feePayer)
	require.Error(t, err)
}
