// Copyright 2025 Certen Protocol
//
// Offline Solana instruction and transaction building.

package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

// GenericInstructionBuilder turns a SolanaPayload's already-encoded
// instruction data into a signable transaction without knowing anything
// about the target program: the adapter that produced the payload chose
// the account list and instruction bytes, so this only needs to assemble
// them the way every solana-go client does (solana.NewInstruction +
// solana.NewTransaction with the fee payer set as the sole signer slot).
type GenericInstructionBuilder struct{}

// NewGenericInstructionBuilder wires a stateless InstructionBuilder.
func NewGenericInstructionBuilder() *GenericInstructionBuilder {
	return &GenericInstructionBuilder{}
}

func (b *GenericInstructionBuilder) Build(payload ctypes.SolanaPayload, feePayer solana.PublicKey) (*solana.Transaction, error) {
	programID, err := solana.PublicKeyFromBase58(payload.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("solana: parse program id: %w", err)
	}

	metas := make(solana.AccountMetaSlice, 0, len(payload.Accounts))
	for _, acc := range payload.Accounts {
		pk, err := solana.PublicKeyFromBase58(acc)
		if err != nil {
			return nil, fmt.Errorf("solana: parse account %s: %w", acc, err)
		}
		metas = append(metas, &solana.AccountMeta{PublicKey: pk, IsWritable: true, IsSigner: pk.Equals(feePayer)})
	}

	ix := solana.NewInstruction(programID, metas, payload.Instruction)

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("solana: build transaction: %w", err)
	}
	return tx, nil
}
