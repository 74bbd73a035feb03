// Copyright 2025 Certen Protocol
//
// Package solana implements the Solana chain-family execution strategy:
// RPC dial, simulateTransaction and instruction submission.
//
// Solana chains skip gas gating and nonce management entirely (§4.5, and
// Solana has no account-nonce concept the way EVM does); this package
// therefore only needs to expose simulate/submit/confirm, grounded on the
// same shape as internal/chain/evm's Strategy.

package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	ctypes "github.com/certen/yield-orchestrator/internal/types"
)

// Strategy is one Solana cluster's live RPC connection.
type Strategy struct {
	chainID ctypes.ChainID
	client  *rpc.Client
}

// Dial connects to rpcURL and fails fast if the cluster is unreachable.
func Dial(ctx context.Context, chain ctypes.ChainID, rpcURL string) (*Strategy, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("solana: empty RPC URL for chain %s", chain)
	}
	client := rpc.New(rpcURL)
	if _, err := client.GetHealth(ctx); err != nil {
		return nil, fmt.Errorf("solana: health check %s: %w", chain, err)
	}
	return &Strategy{chainID: chain, client: client}, nil
}

// SimResult mirrors evm.SimResult for the Solana family.
type SimResult struct {
	OK           bool
	UnitsUsed    uint64
	RevertReason string
}

// Simulate calls simulateTransaction with sigVerify=false and
// replaceRecentBlockhash=true, per §4.4's Solana simulation contract.
func (s *Strategy) Simulate(ctx context.Context, tx *solana.Transaction) (*SimResult, error) {
	out, err := s.client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		ReplaceRecentBlockhash: true,
		Commitment:             rpc.CommitmentProcessed,
	})
	if err != nil {
		return nil, fmt.Errorf("solana: simulate: %w", err)
	}
	if out.Value.Err != nil {
		return &SimResult{OK: false, RevertReason: fmt.Sprintf("%v: %v", out.Value.Err, out.Value.Logs)}, nil
	}
	units := uint64(0)
	if out.Value.UnitsConsumed != nil {
		units = *out.Value.UnitsConsumed
	}
	return &SimResult{OK: true, UnitsUsed: units}, nil
}

// Submit signs tx with the given fee payer key and broadcasts it.
func (s *Strategy) Submit(ctx context.Context, tx *solana.Transaction, signer solana.PrivateKey) (string, error) {
	recent, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("solana: latest blockhash: %w", err)
	}
	tx.Message.RecentBlockhash = recent.Value.Blockhash

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("solana: sign: %w", err)
	}

	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{SkipPreflight: false})
	if err != nil {
		return "", fmt.Errorf("solana: send: %w", err)
	}
	return sig.String(), nil
}

// Confirmation mirrors evm.Confirmation for the Solana family.
type Confirmation struct {
	Success bool
	Slot    uint64
}

// PollSignatureStatus polls getSignatureStatuses until the transaction is
// confirmed, fails, or the context's confirmation deadline elapses.
func (s *Strategy) PollSignatureStatus(ctx context.Context, sig string, pollInterval time.Duration) (*Confirmation, error) {
	parsed, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return nil, fmt.Errorf("solana: parse signature: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		out, err := s.client.GetSignatureStatuses(ctx, true, parsed)
		if err != nil {
			return nil, fmt.Errorf("solana: signature status: %w", err)
		}
		if len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return &Confirmation{Success: false, Slot: st.Slot}, nil
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return &Confirmation{Success: true, Slot: st.Slot}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("solana: confirmation timeout for %s", sig)
		case <-ticker.C:
		}
	}
}
