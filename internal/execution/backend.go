// Copyright 2025 Certen Protocol
//
// Backend, KeySource and SignatureBridge interfaces for the execution pipeline.

package execution

import (
	"context"

	"github.com/certen/yield-orchestrator/internal/types"
)

// SimOutcome is the TxSimulator result (C4, §4.4), family-agnostic.
type SimOutcome struct {
	OK           bool
	GasEstimate  uint64
	RevertReason string
}

// ConfirmOutcome is the result of polling a submitted transaction to a
// terminal state (§4.8 step 7).
type ConfirmOutcome struct {
	Success    bool
	GasCostUsd float64
}

// Backend is the per-chain-family execution strategy the Executor drives
// for direct submission: simulate, submit (sign + broadcast) and confirm.
// internal/chain/{evm,solana,move} each provide one implementation; the
// Executor never branches on family beyond selecting which Backend to
// call (§9 redesign: exhaustive match over a sum type, not optional
// fields).
type Backend interface {
	Family() types.Family

	// Simulate dry-runs payload from wallet's address.
	Simulate(ctx context.Context, wallet string, payload types.TxPayload) (SimOutcome, error)

	// Submit signs payload with privateKey and broadcasts it, returning
	// the chain's transaction identifier (hash or signature). gasEstimate
	// is the simulator's result, used to size gas limit/compute budget.
	Submit(ctx context.Context, wallet, privateKey string, payload types.TxPayload, gasEstimate uint64) (string, error)

	// Confirm polls until the submission reaches a terminal state or the
	// context's confirmation deadline elapses.
	Confirm(ctx context.Context, txID string) (ConfirmOutcome, error)
}
