// Copyright 2025 Certen Protocol
//
// Solana chain-family backend wiring.

package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/certen/yield-orchestrator/internal/execution"
	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

// Backend adapts a Strategy into execution.Backend for Solana submission.
// Solana needs neither a NonceManager (no account-nonce concept) nor a
// GasScheduler gate (§4.5: non-EVM chains always execute now).
type Backend struct {
	chainID  ctypes.ChainID
	strategy *Strategy
	builder  InstructionBuilder

	pollInterval time.Duration
}

// InstructionBuilder turns a SolanaPayload into a signable transaction.
// The adapter that produced the payload knows the program/account
// layout; the backend only needs to assemble and sign it.
type InstructionBuilder interface {
	Build(payload ctypes.SolanaPayload, feePayer solana.PublicKey) (*solana.Transaction, error)
}

// NewBackend wires a Solana execution.Backend.
func NewBackend(chainID ctypes.ChainID, strategy *Strategy, builder InstructionBuilder) *Backend {
	return &Backend{chainID: chainID, strategy: strategy, builder: builder, pollInterval: 2 * time.Second}
}

func (b *Backend) Family() ctypes.Family { return ctypes.FamilySolana }

func (b *Backend) Simulate(ctx context.Context, wallet string, payload ctypes.TxPayload) (execution.SimOutcome, error) {
	solPayload, ok := payload.(ctypes.SolanaPayload)
	if !ok {
		return execution.SimOutcome{}, fmt.Errorf("solana backend: payload is not a SolanaPayload")
	}
	feePayer, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return execution.SimOutcome{}, fmt.Errorf("solana backend: parse wallet: %w", err)
	}
	tx, err := b.builder.Build(solPayload, feePayer)
	if err != nil {
		return execution.SimOutcome{}, err
	}
	result, err := b.strategy.Simulate(ctx, tx)
	if err != nil {
		return execution.SimOutcome{}, err
	}
	return execution.SimOutcome{OK: result.OK, GasEstimate: result.UnitsUsed, RevertReason: result.RevertReason}, nil
}

func (b *Backend) Submit(ctx context.Context, wallet, privateKey string, payload ctypes.TxPayload, gasEstimate uint64) (string, error) {
	solPayload, ok := payload.(ctypes.SolanaPayload)
	if !ok {
		return "", fmt.Errorf("solana backend: payload is not a SolanaPayload")
	}
	signer, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return "", fmt.Errorf("solana backend: parse private key: %w", err)
	}
	tx, err := b.builder.Build(solPayload, signer.PublicKey())
	if err != nil {
		return "", err
	}
	return b.strategy.Submit(ctx, tx, signer)
}

func (b *Backend) Confirm(ctx context.Context, txID string) (execution.ConfirmOutcome, error) {
	conf, err := b.strategy.PollSignatureStatus(ctx, txID, b.pollInterval)
	if err != nil {
		return execution.ConfirmOutcome{}, err
	}
	// Solana transaction fees are a flat, tiny, protocol-fixed lamport
	// amount; gas-cost-in-USD accounting is EVM-centric and the core
	// does not track it per-chain beyond that family.
	return execution.ConfirmOutcome{Success: conf.Success}, nil
}
