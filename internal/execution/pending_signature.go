// Copyright 2025 Certen Protocol
//
// Pending-signature bridge for wallets without a hot key.

package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen/yield-orchestrator/internal/store"
	"github.com/certen/yield-orchestrator/internal/types"
)

// DefaultSignatureTTL is the §4.12 default window an external signer has
// to broadcast a pending payload before it expires.
const DefaultSignatureTTL = 30 * time.Minute

// SignaturePollInterval is how often AwaitSignature re-checks the pending
// row's status while blocked.
const SignaturePollInterval = 3 * time.Second

// PendingSignatureBridge implements C12: the non-custodial escape hatch
// for chains with no hot key loaded. A payload is persisted for an
// external signer, and the executor blocks on AwaitSignature until it is
// broadcasted, rejected, or the TTL elapses.
type PendingSignatureBridge struct {
	repo *store.PendingSignatureRepository
	ttl  time.Duration
}

// NewPendingSignatureBridge wires a bridge over repo with the default TTL.
func NewPendingSignatureBridge(repo *store.PendingSignatureRepository) *PendingSignatureBridge {
	return &PendingSignatureBridge{repo: repo, ttl: DefaultSignatureTTL}
}

// AwaitSignature persists payload and blocks until an external caller
// resolves it via Broadcast/Reject, the TTL elapses, or ctx is cancelled.
func (b *PendingSignatureBridge) AwaitSignature(ctx context.Context, chain types.ChainID, kind types.StepKind, amountUsd float64, payload types.TxPayload) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", New(KindConfig, "encode pending payload", err)
	}

	row, err := b.repo.Create(ctx, chain, kind, amountUsd, encoded)
	if err != nil {
		return "", New(KindConfig, "persist pending signature", err)
	}

	deadline := row.CreatedAt.Add(b.ttl)
	ticker := time.NewTicker(SignaturePollInterval)
	defer ticker.Stop()

	for {
		current, err := b.repo.ByID(ctx, row.ID)
		if err != nil {
			return "", New(KindConfig, "reload pending signature", err)
		}
		switch current.Status {
		case types.PendingSigBroadcasted:
			return current.SignatureOrHash, nil
		case types.PendingSigRejected:
			return "", New(KindPolicyRejection, "signer rejected the pending transaction", nil)
		case types.PendingSigExpired:
			return "", New(KindTimeout, "signature request expired", nil)
		}

		if time.Now().After(deadline) {
			_ = b.repo.MarkExpired(ctx, row.ID)
			return "", New(KindTimeout, fmt.Sprintf("signature request %s timed out after %s", row.ID, b.ttl), nil)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Broadcast resolves a pending row once an external signer has submitted
// it, unblocking any in-flight AwaitSignature call for that id.
func (b *PendingSignatureBridge) Broadcast(ctx context.Context, id, txIDOrSignature string) error {
	return b.repo.MarkBroadcasted(ctx, id, txIDOrSignature)
}

// Reject marks a pending row as rejected by its external signer.
func (b *PendingSignatureBridge) Reject(ctx context.Context, id string) error {
	return b.repo.MarkRejected(ctx, id)
}

// SweepExpired expires every pending row past its TTL; call periodically
// alongside the dispatcher's other background loops.
func (b *PendingSignatureBridge) SweepExpired(ctx context.Context) ([]string, error) {
	return b.repo.ExpireStale(ctx, b.ttl)
}
